// Package fswatch waits for file system changes as tasks.
package fswatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/poa00/go-tasktree/tasking"
)

var (
	// ErrWatchClosed is reported when the underlying watcher closes before
	// a matching event arrives.
	ErrWatchClosed = errors.New("watch closed")
)

// Watch is a task completing at the first file system event under Path
// whose operation matches Ops. The watch is armed synchronously while the
// task starts, so changes made after the enclosing tree's Start returns
// are never missed.
type Watch struct {
	Path string
	Ops  fsnotify.Op // zero matches any operation

	Event fsnotify.Event // the matching event, for the done handler

	watcher *fsnotify.Watcher
}

var _ tasking.Task = (*Watch)(nil)

func (w *Watch) Start(ctx context.Context, done func(error)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		done(fmt.Errorf("create watcher: %w", err))
		return
	}
	if err := watcher.Add(w.Path); err != nil {
		watcher.Close()
		done(fmt.Errorf("watch %s: %w", w.Path, err))
		return
	}
	w.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					done(ErrWatchClosed)
					return
				}
				if w.Ops != 0 && ev.Op&w.Ops == 0 {
					continue
				}
				w.Event = ev
				done(nil)
				return
			case werr, ok := <-watcher.Errors:
				if !ok {
					done(ErrWatchClosed)
					return
				}
				done(fmt.Errorf("watch %s: %w", w.Path, werr))
				return
			}
		}
	}()
}

func (w *Watch) Cancel() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

// WaitFor declares a task waiting for a change under path. Zero ops match
// any operation.
func WaitFor(path string, ops fsnotify.Op, opts ...tasking.TaskOption[*Watch]) tasking.Item {
	return tasking.NewTask(func() *Watch {
		return &Watch{Path: path, Ops: ops}
	}, opts...)
}
