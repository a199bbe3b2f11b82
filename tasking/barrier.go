package tasking

import (
	"context"
	"fmt"
)

// Barrier releases its waiters once it has been advanced a required number
// of times or stopped with an explicit result. The zero value is unarmed;
// Start arms it. Advances before arming are counted. All methods belong on
// the tree's loop.
type Barrier struct {
	limit   int
	current int
	done    bool
	result  error
	waiters []func(error)
}

// Start arms the barrier to release after limit advances.
func (b *Barrier) Start(limit int) {
	if limit < 1 {
		panic(fmt.Sprintf("invalid barrier limit: %d", limit))
	}
	b.limit = limit
	b.maybeRelease()
}

// Started reports whether the barrier has been armed.
func (b *Barrier) Started() bool {
	return b.limit > 0
}

// Advance counts one step toward release. Advancing past the threshold is
// a no-op.
func (b *Barrier) Advance() {
	if b.done {
		return
	}
	b.current++
	b.maybeRelease()
}

// StopWithResult releases the barrier immediately with the given result,
// regardless of the advance count. A non-nil result fails the waiters.
func (b *Barrier) StopWithResult(err error) {
	if b.done {
		return
	}
	b.release(err)
}

func (b *Barrier) maybeRelease() {
	if b.done || b.limit < 1 || b.current < b.limit {
		return
	}
	b.release(nil)
}

func (b *Barrier) release(err error) {
	b.done = true
	b.result = err
	waiters := b.waiters
	b.waiters = nil
	for _, w := range waiters {
		w(err)
	}
}

// OnRelease registers fn to be invoked with the barrier's result when it
// releases. Waiters are invoked in registration order. A barrier that has
// already released invokes fn immediately.
func (b *Barrier) OnRelease(fn func(error)) {
	if b.done {
		fn(b.result)
		return
	}
	b.waiters = append(b.waiters, fn)
}

// SharedBarrier couples a Barrier with a storage declaration, so that
// every run of the declaring group synchronizes on a fresh instance.
// Declare Storage() in the group enclosing all waiters and advances.
type SharedBarrier struct {
	limit   int
	storage *TreeStorage[Barrier]
}

// NewBarrier creates a shared barrier releasing after a single advance.
func NewBarrier() *SharedBarrier {
	return NewMultiBarrier(1)
}

// NewMultiBarrier creates a shared barrier releasing after limit advances.
func NewMultiBarrier(limit int) *SharedBarrier {
	if limit < 1 {
		panic(fmt.Sprintf("invalid barrier limit: %d", limit))
	}
	return &SharedBarrier{limit: limit, storage: NewTreeStorage[Barrier]()}
}

// Storage returns the handle to declare in the group whose runs share the
// barrier.
func (sb *SharedBarrier) Storage() *TreeStorage[Barrier] {
	return sb.storage
}

// Get returns the current run's barrier instance, armed on first access.
func (sb *SharedBarrier) Get(ctx context.Context) *Barrier {
	b := sb.storage.Get(ctx)
	if !b.Started() {
		b.Start(sb.limit)
	}
	return b
}

type waitForBarrier struct {
	sb *SharedBarrier
}

func (w *waitForBarrier) Start(ctx context.Context, done func(error)) {
	w.sb.Get(ctx).OnRelease(done)
}

func (w *waitForBarrier) Cancel() {}

// WaitForBarrier declares a task that completes once the barrier releases.
// It completes immediately when the barrier has already released, and it
// fails when the barrier was stopped with an error. A waiter on a barrier
// that never releases never completes on its own; an enclosing policy stop
// or timeout cancels it like any other task.
func WaitForBarrier(sb *SharedBarrier) Item {
	return NewTask(func() Task { return &waitForBarrier{sb: sb} })
}

// AdvanceBarrier declares a synchronous step advancing the barrier once.
func AdvanceBarrier(sb *SharedBarrier) Item {
	return Sync(func(ctx context.Context) error {
		sb.Get(ctx).Advance()
		return nil
	})
}

// StopBarrier declares a synchronous step releasing the barrier with the
// given result immediately.
func StopBarrier(sb *SharedBarrier, result error) Item {
	return Sync(func(ctx context.Context) error {
		sb.Get(ctx).StopWithResult(result)
		return nil
	})
}
