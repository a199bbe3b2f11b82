// Package treetest provides shared helpers for task tree tests.
package treetest

import (
	"fmt"
	"sync"
)

// EventKind labels one recorded handler invocation.
type EventKind int

const (
	Setup EventKind = iota
	Done
	Error
	GroupSetup
	GroupDone
	GroupError
	StorageSetup
	StorageDone
)

func (k EventKind) String() string {
	switch k {
	case Setup:
		return "setup"
	case Done:
		return "done"
	case Error:
		return "error"
	case GroupSetup:
		return "group-setup"
	case GroupDone:
		return "group-done"
	case GroupError:
		return "group-error"
	case StorageSetup:
		return "storage-setup"
	case StorageDone:
		return "storage-done"
	default:
		return fmt.Sprintf("unknown-%d", int(k))
	}
}

// Event is one recorded handler invocation, identified by the caller's
// task or group id.
type Event struct {
	ID   int
	Kind EventKind
}

func (e Event) String() string {
	return fmt.Sprintf("{%d %s}", e.ID, e.Kind)
}

// E is shorthand for constructing an expected Event.
func E(id int, kind EventKind) Event {
	return Event{ID: id, Kind: kind}
}

// Log records events in invocation order. Handlers record from the tree's
// loop while tests read from their own goroutine, hence the lock.
type Log struct {
	mu     sync.Mutex
	events []Event
}

// Record appends one event.
func (l *Log) Record(id int, kind EventKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{ID: id, Kind: kind})
}

// Events returns a copy of everything recorded so far.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Reset clears the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
