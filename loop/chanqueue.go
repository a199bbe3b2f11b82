package loop

import (
	"context"
	"time"

	"github.com/poa00/go-tasktree/util"
)

// ChanQueue is a trivial queue implementation using a channel
type ChanQueue struct {
	queue chan Action
}

var (
	_ QueueWithEmpty = (*ChanQueue)(nil)
	_ QueueWithWait  = (*ChanQueue)(nil)
)

// NewChanQueue creates a new queue
func NewChanQueue(capacity int) *ChanQueue {
	return &ChanQueue{
		queue: make(chan Action, capacity),
	}
}

// Enqueue adds an element to the queue
func (q *ChanQueue) Enqueue(ctx context.Context, a Action) {
	_, span := util.StartSpan(ctx, "ChanQueue.Enqueue")
	defer span.End()
	q.queue <- a
}

// Dequeue reads the next element from the queue, or nil if the queue is empty
func (q *ChanQueue) Dequeue(ctx context.Context) Action {
	_, span := util.StartSpan(ctx, "ChanQueue.Dequeue")
	defer span.End()

	if q.Empty() {
		span.AddEvent("empty queue")
		return nil
	}

	return <-q.queue
}

// WaitDequeue reads the next element from the queue, blocking until one
// arrives, the wake channel fires, or ctx is done.
func (q *ChanQueue) WaitDequeue(ctx context.Context, wake <-chan time.Time) Action {
	select {
	case a := <-q.queue:
		return a
	case <-wake:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Empty returns true if the queue is empty
func (q *ChanQueue) Empty() bool {
	return len(q.queue) == 0
}

func (q *ChanQueue) Size() uint {
	return uint(len(q.queue))
}

func (q *ChanQueue) Close() {
	close(q.queue)
}
