package tasking

import (
	"context"
)

// Task is the contract between a concrete asynchronous operation and the
// tree runtime. Start is called at most once per run instance and must be
// followed by exactly one call to done, which may come from any goroutine;
// the runtime marshals it back onto the tree's loop. Cancel asks the
// operation to stop. The runtime never waits for the cancellation to take
// effect and drops any done signal arriving afterwards.
type Task interface {
	Start(ctx context.Context, done func(error))
	Cancel()
}

type itemKind int

const (
	itemTask itemKind = iota
	itemGroup
	itemStorage
	itemLimit
	itemPolicy
	itemOnSetup
	itemOnDone
	itemOnError
)

// An Item is one element of a group's body: a child task or group, a
// storage declaration, an execution mode, a workflow policy, or a lifecycle
// hook. Items are inert declarations; they only take effect once the group
// holding them is run by a TaskTree.
type Item struct {
	kind       itemKind
	task       *taskDecl
	group      *Group
	storage    StorageHandle
	limit      int
	policy     WorkflowPolicy
	groupSetup func(context.Context) (SetupResult, error)
	hook       func(context.Context)
}

// taskDecl is the type erased declaration of a leaf task.
type taskDecl struct {
	create  func() Task
	onSetup func(context.Context, Task) SetupResult
	onDone  func(context.Context, Task)
	onError func(context.Context, Task, error)
}

type taskHandlers[T Task] struct {
	onSetup func(context.Context, T) SetupResult
	onDone  func(context.Context, T)
	onError func(context.Context, T, error)
}

// A TaskOption attaches a handler to a declared task.
type TaskOption[T Task] func(*taskHandlers[T])

// OnSetup runs fn synchronously just before the task starts, with the fresh
// adapter instance to configure. Returning StopWithDone or StopWithError
// resolves the task without starting it and without invoking its done or
// error handler.
func OnSetup[T Task](fn func(context.Context, T) SetupResult) TaskOption[T] {
	return func(h *taskHandlers[T]) { h.onSetup = fn }
}

// OnDone runs fn after the task resolved successfully.
func OnDone[T Task](fn func(context.Context, T)) TaskOption[T] {
	return func(h *taskHandlers[T]) { h.onDone = fn }
}

// OnError runs fn after the task failed or was cancelled.
func OnError[T Task](fn func(context.Context, T, error)) TaskOption[T] {
	return func(h *taskHandlers[T]) { h.onError = fn }
}

// NewTask declares a leaf task. The create function is invoked once per run
// to produce a fresh adapter instance.
func NewTask[T Task](create func() T, opts ...TaskOption[T]) Item {
	h := &taskHandlers[T]{}
	for _, o := range opts {
		o(h)
	}

	decl := &taskDecl{
		create: func() Task { return create() },
	}
	if fn := h.onSetup; fn != nil {
		decl.onSetup = func(ctx context.Context, task Task) SetupResult {
			return fn(ctx, task.(T))
		}
	}
	if fn := h.onDone; fn != nil {
		decl.onDone = func(ctx context.Context, task Task) {
			fn(ctx, task.(T))
		}
	}
	if fn := h.onError; fn != nil {
		decl.onError = func(ctx context.Context, task Task, err error) {
			fn(ctx, task.(T), err)
		}
	}
	return Item{kind: itemTask, task: decl}
}

// Sync declares an inline synchronous step. The function runs when the
// enclosing group reaches it and resolves the step with its return value.
// Sync steps do not contribute to TaskCount.
func Sync(fn func(context.Context) error) Item {
	return GroupItem(NewGroup(Item{
		kind: itemOnSetup,
		groupSetup: func(ctx context.Context) (SetupResult, error) {
			if err := fn(ctx); err != nil {
				return StopWithError, err
			}
			return StopWithDone, nil
		},
	}))
}

// SyncResult is Sync for steps that report a verdict instead of an error.
// Continue and StopWithDone resolve the step successfully, StopWithError
// fails it with ErrShortCircuit.
func SyncResult(fn func(context.Context) SetupResult) Item {
	return GroupItem(NewGroup(Item{
		kind: itemOnSetup,
		groupSetup: func(ctx context.Context) (SetupResult, error) {
			return fn(ctx), nil
		},
	}))
}
