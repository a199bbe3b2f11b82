package tasking

import (
	"context"
	"time"

	"github.com/poa00/go-tasktree/loop"
)

// Timer is a task that resolves after a fixed duration on the tree's
// clock, without occupying a goroutine while waiting. A non-nil Result
// makes it resolve as a failure, which WithTimeout uses to signal missed
// deadlines.
type Timer struct {
	Duration time.Duration
	Result   error

	lp      *loop.Loop
	planned loop.PlannedAction
}

var _ Task = (*Timer)(nil)

func (tm *Timer) Start(ctx context.Context, done func(error)) {
	fr := frameFrom(ctx)
	if fr == nil {
		panic("timer started outside a task tree run")
	}
	tm.lp = fr.tree.loop()
	tm.planned = tm.lp.ScheduleActionIn(ctx, tm.Duration, loop.Func(func(context.Context) {
		done(tm.Result)
	}))
}

func (tm *Timer) Cancel() {
	if tm.planned != nil {
		tm.lp.RemovePlannedAction(context.Background(), tm.planned)
		tm.planned = nil
	}
}

// TimerTask declares a task that succeeds after d on the tree's clock.
func TimerTask(d time.Duration, opts ...TaskOption[*Timer]) Item {
	return NewTask(func() *Timer { return &Timer{Duration: d} }, opts...)
}
