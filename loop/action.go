package loop

import (
	"context"
)

// An Action is a unit of work to be run by a Loop.
type Action interface {
	// Run executes the action
	Run(context.Context)
}

// A Func is the default Action used to hand plain closures to a Loop.
type Func func(context.Context)

var _ Action = (*Func)(nil)

// Run executes the action
func (f Func) Run(ctx context.Context) {
	f(ctx)
}
