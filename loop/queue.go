package loop

import (
	"context"
	"time"
)

type Queue interface {
	Enqueue(context.Context, Action)
	Dequeue(context.Context) Action

	Size() uint
	Close()
}

type QueueEnqueueMany interface {
	Queue
	EnqueueMany(context.Context, []Action)
}

func EnqueueMany(ctx context.Context, q Queue, actions []Action) {
	switch queue := q.(type) {
	case QueueEnqueueMany:
		queue.EnqueueMany(ctx, actions)
	default:
		for _, a := range actions {
			q.Enqueue(ctx, a)
		}
	}
}

type QueueDequeueAll interface {
	DequeueAll(context.Context) []Action
}

func DequeueAll(ctx context.Context, q Queue) []Action {
	switch queue := q.(type) {
	case QueueDequeueAll:
		return queue.DequeueAll(ctx)
	default:
		actions := make([]Action, 0, q.Size())
		for a := q.Dequeue(ctx); a != nil; a = q.Dequeue(ctx) {
			actions = append(actions, a)
		}
		return actions
	}
}

type QueueWithEmpty interface {
	Queue
	Empty() bool
}

func Empty(q Queue) bool {
	switch queue := q.(type) {
	case QueueWithEmpty:
		return queue.Empty()
	default:
		return q.Size() == 0
	}
}

// QueueWithWait is a Queue whose dequeue can block until an action arrives.
type QueueWithWait interface {
	Queue
	// WaitDequeue blocks until an action can be dequeued, the wake channel
	// fires, or ctx is done. It returns nil if no action was dequeued. A nil
	// wake channel blocks forever on that arm.
	WaitDequeue(ctx context.Context, wake <-chan time.Time) Action
}
