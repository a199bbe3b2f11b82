package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/poa00/go-tasktree/taskerr"
)

const DefaultQueueCapacity = 1024

// LoopConfig specifies optional configuration for a Loop
type LoopConfig struct {
	Clock         clock.Clock // a clock that may be replaced by a mock when testing
	QueueCapacity int         // the capacity of the run queue
}

// Validate checks the configuration options and returns an error if any have invalid values.
func (cfg *LoopConfig) Validate() error {
	if cfg.Clock == nil {
		return &taskerr.ConfigurationError{
			Component: "LoopConfig",
			Err:       fmt.Errorf("clock must not be nil"),
		}
	}

	if cfg.QueueCapacity < 1 {
		return &taskerr.ConfigurationError{
			Component: "LoopConfig",
			Err:       fmt.Errorf("queue capacity must be greater than zero"),
		}
	}

	return nil
}

// DefaultLoopConfig returns the default configuration options for a Loop.
// Options may be overridden before passing to NewLoop.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		Clock:         clock.New(), // use standard time
		QueueCapacity: DefaultQueueCapacity,
	}
}

// Loop runs actions one at a time on the goroutine that drives it. It
// combines a channel based queue for immediate actions with a time sorted
// planner for delayed ones. Enqueue may be called from any goroutine; all
// other methods belong to the driving goroutine.
type Loop struct {
	clk clock.Clock

	queue   Queue
	planner AwarePlanner
}

// NewLoop creates a new Loop.
func NewLoop(cfg *LoopConfig) (*Loop, error) {
	if cfg == nil {
		cfg = DefaultLoopConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loop{
		clk:     cfg.Clock,
		queue:   NewChanQueue(cfg.QueueCapacity),
		planner: NewTimePlanner(cfg.Clock),
	}, nil
}

// Clock returns the loop's clock.
func (l *Loop) Clock() clock.Clock {
	return l.clk
}

// Enqueue adds an action to be run as soon as possible.
func (l *Loop) Enqueue(ctx context.Context, a Action) {
	l.queue.Enqueue(ctx, a)
}

// ScheduleAction schedules an action to run at a specific time.
func (l *Loop) ScheduleAction(ctx context.Context, t time.Time, a Action) PlannedAction {
	if l.clk.Now().After(t) {
		l.Enqueue(ctx, a)
		return nil
	}
	return l.planner.ScheduleAction(ctx, t, a)
}

// ScheduleActionIn schedules an action to run after a delay.
func (l *Loop) ScheduleActionIn(ctx context.Context, d time.Duration, a Action) PlannedAction {
	if d <= 0 {
		l.Enqueue(ctx, a)
		return nil
	}
	return l.planner.ScheduleAction(ctx, l.clk.Now().Add(d), a)
}

// RemovePlannedAction removes an action from the loop's planned actions
// (not from the queue), does nothing if the action is not in the planner
func (l *Loop) RemovePlannedAction(ctx context.Context, a PlannedAction) bool {
	return l.planner.RemoveAction(ctx, a)
}

// moveOverdueActions moves all overdue actions from the planner to the queue.
func (l *Loop) moveOverdueActions(ctx context.Context) {
	overdue := l.planner.PopOverdueActions(ctx)

	EnqueueMany(ctx, l.queue, overdue)
}

// RunOne runs one action from the loop's queue, returning true if an action
// was run, false if the queue was empty.
func (l *Loop) RunOne(ctx context.Context) bool {
	l.moveOverdueActions(ctx)

	if a := l.queue.Dequeue(ctx); a != nil {
		a.Run(ctx)
		return true
	}
	return false
}

// NextActionTime returns the time of the next action to run, or the current
// time if there are actions waiting in the queue, or MaxTime if there is
// nothing to run.
func (l *Loop) NextActionTime(ctx context.Context) time.Time {
	l.moveOverdueActions(ctx)
	nextScheduled := l.planner.NextActionTime(ctx)

	if !Empty(l.queue) {
		return l.clk.Now()
	}
	return nextScheduled
}

// RunOrWait runs the next action, blocking until one becomes ready when the
// queue is empty. It returns false only when ctx was done before an action
// could run or the loop's queue cannot block.
func (l *Loop) RunOrWait(ctx context.Context) bool {
	for {
		if l.RunOne(ctx) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		wq, ok := l.queue.(QueueWithWait)
		if !ok {
			return false
		}

		var wake <-chan time.Time
		next := l.planner.NextActionTime(ctx)
		if next != MaxTime {
			timer := l.clk.Timer(next.Sub(l.clk.Now()))
			wake = timer.C
			a := wq.WaitDequeue(ctx, wake)
			timer.Stop()
			if a == nil {
				continue
			}
			a.Run(ctx)
			return true
		}

		if a := wq.WaitDequeue(ctx, nil); a != nil {
			a.Run(ctx)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
}
