package tasking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poa00/go-tasktree/internal/treetest"
)

func TestSequentialStopOnError(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		report(log, 1, time.Millisecond, nil),
		report(log, 2, time.Millisecond, taskErr(2)),
		report(log, 3, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	err := rig.run(t)
	require.ErrorContains(t, err, "task 2 failed")
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Done),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Error),
	}, log.Events())
	require.Equal(t, 3, rig.tree.TaskCount())
	require.Equal(t, 3, rig.tree.ProgressValue())
}

func TestSequentialAllDone(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		report(log, 1, time.Millisecond, nil),
		report(log, 2, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	require.NoError(t, rig.run(t))
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Done),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Done),
	}, log.Events())
	require.Equal(t, rig.tree.TaskCount(), rig.tree.ProgressValue())
}

func TestParallelSetupsPrecedeCompletions(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		Parallel,
		report(log, 1, time.Millisecond, nil),
		report(log, 2, time.Millisecond, nil),
		report(log, 3, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	// all setups run synchronously while Start is on the stack
	require.NoError(t, rig.tree.Start(context.Background()))
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(2, treetest.Setup),
		treetest.E(3, treetest.Setup),
	}, log.Events())

	rig.sim.Run(context.Background())
	require.NoError(t, rig.tree.Result())
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(2, treetest.Setup),
		treetest.E(3, treetest.Setup),
		treetest.E(1, treetest.Done),
		treetest.E(2, treetest.Done),
		treetest.E(3, treetest.Done),
	}, log.Events())
	require.Equal(t, 3, rig.tree.ProgressValue())
}

func TestParallelStopOnErrorCancelsSiblings(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		Parallel,
		report(log, 1, time.Millisecond, taskErr(1)),
		report(log, 2, 2*time.Millisecond, nil),
		report(log, 3, 3*time.Millisecond, nil),
	)
	rig := newRig(t, root)

	err := rig.run(t)
	require.ErrorContains(t, err, "task 1 failed")
	// the failing task's error handler runs first, then the cancelled
	// siblings' error handlers in declaration order
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(2, treetest.Setup),
		treetest.E(3, treetest.Setup),
		treetest.E(1, treetest.Error),
		treetest.E(2, treetest.Error),
		treetest.E(3, treetest.Error),
	}, log.Events())
	require.Equal(t, 3, rig.tree.ProgressValue())
}

func TestContinueOnError(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		Workflow(ContinueOnError),
		report(log, 1, time.Millisecond, taskErr(1)),
		report(log, 2, time.Millisecond, nil),
		report(log, 3, time.Millisecond, taskErr(3)),
	)
	rig := newRig(t, root)

	err := rig.run(t)
	require.ErrorContains(t, err, "task 1 failed")
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Error),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Done),
		treetest.E(3, treetest.Setup),
		treetest.E(3, treetest.Error),
	}, log.Events())
	require.Equal(t, 3, rig.tree.ProgressValue())
}

func TestStopOnDone(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		Workflow(StopOnDone),
		report(log, 1, time.Millisecond, taskErr(1)),
		report(log, 2, time.Millisecond, nil),
		report(log, 3, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	require.NoError(t, rig.run(t))
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Error),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Done),
	}, log.Events())
	require.Equal(t, 3, rig.tree.ProgressValue())
}

func TestContinueOnDone(t *testing.T) {
	t.Run("one success wins", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			Workflow(ContinueOnDone),
			report(log, 1, time.Millisecond, taskErr(1)),
			report(log, 2, time.Millisecond, nil),
			report(log, 3, time.Millisecond, taskErr(3)),
		)
		rig := newRig(t, root)

		require.NoError(t, rig.run(t))
		require.Len(t, log.Events(), 6)
	})

	t.Run("all failing", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			Workflow(ContinueOnDone),
			report(log, 1, time.Millisecond, taskErr(1)),
			report(log, 2, time.Millisecond, taskErr(2)),
		)
		rig := newRig(t, root)

		err := rig.run(t)
		require.ErrorContains(t, err, "task 1 failed")
	})
}

func TestStopOnFinished(t *testing.T) {
	t.Run("first finisher fails", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			Parallel,
			Workflow(StopOnFinished),
			report(log, 1, 3*time.Millisecond, nil),
			report(log, 2, time.Millisecond, taskErr(2)),
			report(log, 3, 5*time.Millisecond, nil),
		)
		rig := newRig(t, root)

		err := rig.run(t)
		require.ErrorContains(t, err, "task 2 failed")
		require.Equal(t, []treetest.Event{
			treetest.E(1, treetest.Setup),
			treetest.E(2, treetest.Setup),
			treetest.E(3, treetest.Setup),
			treetest.E(2, treetest.Error),
			treetest.E(1, treetest.Error),
			treetest.E(3, treetest.Error),
		}, log.Events())
		require.Equal(t, 3, rig.tree.ProgressValue())
	})

	t.Run("first finisher succeeds", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			Parallel,
			Workflow(StopOnFinished),
			report(log, 1, time.Millisecond, nil),
			report(log, 2, 5*time.Millisecond, taskErr(2)),
		)
		rig := newRig(t, root)

		require.NoError(t, rig.run(t))
		require.Equal(t, []treetest.Event{
			treetest.E(1, treetest.Setup),
			treetest.E(2, treetest.Setup),
			treetest.E(1, treetest.Done),
			treetest.E(2, treetest.Error),
		}, log.Events())
	})
}

func TestOptionalAllFailingSucceeds(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		Workflow(Optional),
		report(log, 1, time.Millisecond, taskErr(1)),
		report(log, 2, time.Millisecond, taskErr(2)),
	)
	rig := newRig(t, root)

	require.NoError(t, rig.run(t))
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Error),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Error),
	}, log.Events())
	require.Equal(t, 2, rig.tree.ProgressValue())
}

func TestParallelLimitRefillsInOrder(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		ParallelLimit(2),
		report(log, 1, 2*time.Millisecond, nil),
		report(log, 2, time.Millisecond, nil),
		report(log, 3, time.Millisecond, nil),
		report(log, 4, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	require.NoError(t, rig.run(t))
	// two slots: 1 and 2 start; 2 finishes first and frees a slot for 3;
	// 1 and 3 finish in start order and 4 takes the last slot
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Done),
		treetest.E(3, treetest.Setup),
		treetest.E(1, treetest.Done),
		treetest.E(4, treetest.Setup),
		treetest.E(3, treetest.Done),
		treetest.E(4, treetest.Done),
	}, log.Events())
	require.Equal(t, 4, rig.tree.TaskCount())
	require.Equal(t, 4, rig.tree.ProgressValue())
}

func TestEmptyGroup(t *testing.T) {
	for _, p := range []WorkflowPolicy{StopOnError, ContinueOnError, StopOnDone, ContinueOnDone, StopOnFinished, Optional} {
		t.Run(p.String(), func(t *testing.T) {
			rig := newRig(t, NewGroup(Workflow(p)))
			require.NoError(t, rig.run(t))
			require.Equal(t, 0, rig.tree.TaskCount())
			require.Equal(t, 0, rig.tree.ProgressValue())
		})
	}
}

func TestNestedGroupHookOrder(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		OnGroupSetup(func(context.Context) SetupResult {
			log.Record(10, treetest.GroupSetup)
			return Continue
		}),
		OnGroupDone(func(context.Context) { log.Record(10, treetest.GroupDone) }),
		G(
			OnGroupSetup(func(context.Context) SetupResult {
				log.Record(20, treetest.GroupSetup)
				return Continue
			}),
			OnGroupDone(func(context.Context) { log.Record(20, treetest.GroupDone) }),
			report(log, 1, time.Millisecond, nil),
		),
	)
	rig := newRig(t, root)

	require.NoError(t, rig.run(t))
	// setups outermost first, dones innermost first
	require.Equal(t, []treetest.Event{
		treetest.E(10, treetest.GroupSetup),
		treetest.E(20, treetest.GroupSetup),
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Done),
		treetest.E(20, treetest.GroupDone),
		treetest.E(10, treetest.GroupDone),
	}, log.Events())
}

func TestGroupErrorHook(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		OnGroupDone(func(context.Context) { log.Record(10, treetest.GroupDone) }),
		OnGroupError(func(context.Context) { log.Record(10, treetest.GroupError) }),
		report(log, 1, time.Millisecond, taskErr(1)),
	)
	rig := newRig(t, root)

	err := rig.run(t)
	require.ErrorContains(t, err, "task 1 failed")
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Error),
		treetest.E(10, treetest.GroupError),
	}, log.Events())
}

func TestSync(t *testing.T) {
	t.Run("runs in declaration order", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			report(log, 1, time.Millisecond, nil),
			Sync(func(context.Context) error {
				log.Record(2, treetest.Done)
				return nil
			}),
			report(log, 3, time.Millisecond, nil),
		)
		rig := newRig(t, root)

		require.Equal(t, 2, rig.tree.TaskCount())
		require.NoError(t, rig.run(t))
		require.Equal(t, []treetest.Event{
			treetest.E(1, treetest.Setup),
			treetest.E(1, treetest.Done),
			treetest.E(2, treetest.Done),
			treetest.E(3, treetest.Setup),
			treetest.E(3, treetest.Done),
		}, log.Events())
		require.Equal(t, 2, rig.tree.ProgressValue())
	})

	t.Run("failure stops the group", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			Sync(func(context.Context) error { return taskErr(1) }),
			report(log, 2, time.Millisecond, nil),
		)
		rig := newRig(t, root)

		err := rig.run(t)
		require.ErrorContains(t, err, "task 1 failed")
		require.Empty(t, log.Events())
	})
}

func TestSyncResult(t *testing.T) {
	verdicts := map[SetupResult]error{
		Continue:      nil,
		StopWithDone:  nil,
		StopWithError: ErrShortCircuit,
	}
	for verdict, want := range verdicts {
		t.Run(verdict.String(), func(t *testing.T) {
			ran := false
			root := NewGroup(SyncResult(func(context.Context) SetupResult {
				ran = true
				return verdict
			}))
			rig := newRig(t, root)

			err := rig.run(t)
			require.True(t, ran)
			if want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, want)
			}
		})
	}
}

func TestTaskSetupShortCircuit(t *testing.T) {
	t.Run("stop with done", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			NewTask(
				func() *Timer { return &Timer{Duration: time.Hour} },
				OnSetup(func(context.Context, *Timer) SetupResult {
					log.Record(1, treetest.Setup)
					return StopWithDone
				}),
				OnDone(func(context.Context, *Timer) { log.Record(1, treetest.Done) }),
				OnError(func(context.Context, *Timer, error) { log.Record(1, treetest.Error) }),
			),
		)
		rig := newRig(t, root)

		// the task neither starts nor reports done or error
		require.NoError(t, rig.run(t))
		require.Equal(t, []treetest.Event{treetest.E(1, treetest.Setup)}, log.Events())
		require.Equal(t, 1, rig.tree.ProgressValue())
	})

	t.Run("stop with error", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			NewTask(
				func() *Timer { return &Timer{Duration: time.Hour} },
				OnSetup(func(context.Context, *Timer) SetupResult {
					log.Record(1, treetest.Setup)
					return StopWithError
				}),
				OnError(func(context.Context, *Timer, error) { log.Record(1, treetest.Error) }),
			),
			report(log, 2, time.Millisecond, nil),
		)
		rig := newRig(t, root)

		err := rig.run(t)
		require.ErrorIs(t, err, ErrShortCircuit)
		require.Equal(t, []treetest.Event{treetest.E(1, treetest.Setup)}, log.Events())
		require.Equal(t, 2, rig.tree.ProgressValue())
	})
}

func TestGroupSetupShortCircuit(t *testing.T) {
	t.Run("stop with done", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			OnGroupSetup(func(context.Context) SetupResult { return StopWithDone }),
			OnGroupDone(func(context.Context) { log.Record(10, treetest.GroupDone) }),
			report(log, 1, time.Millisecond, nil),
			report(log, 2, time.Millisecond, nil),
		)
		rig := newRig(t, root)

		require.NoError(t, rig.run(t))
		require.Equal(t, []treetest.Event{treetest.E(10, treetest.GroupDone)}, log.Events())
		require.Equal(t, 2, rig.tree.ProgressValue())
	})

	t.Run("stop with error", func(t *testing.T) {
		log := &treetest.Log{}
		root := NewGroup(
			OnGroupSetup(func(context.Context) SetupResult { return StopWithError }),
			OnGroupError(func(context.Context) { log.Record(10, treetest.GroupError) }),
			report(log, 1, time.Millisecond, nil),
		)
		rig := newRig(t, root)

		err := rig.run(t)
		require.ErrorIs(t, err, ErrShortCircuit)
		require.Equal(t, []treetest.Event{treetest.E(10, treetest.GroupError)}, log.Events())
		require.Equal(t, 1, rig.tree.ProgressValue())
	})
}

func TestNestedGroupFailurePropagates(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		G(
			report(log, 1, time.Millisecond, nil),
			report(log, 2, time.Millisecond, taskErr(2)),
		),
		report(log, 3, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	err := rig.run(t)
	require.ErrorContains(t, err, "task 2 failed")
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Done),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Error),
	}, log.Events())
	require.Equal(t, 3, rig.tree.TaskCount())
	require.Equal(t, 3, rig.tree.ProgressValue())
}

func TestOptionalSubgroupFailureIgnored(t *testing.T) {
	log := &treetest.Log{}
	root := NewGroup(
		G(
			Workflow(Optional),
			report(log, 1, time.Millisecond, taskErr(1)),
		),
		report(log, 2, time.Millisecond, nil),
	)
	rig := newRig(t, root)

	require.NoError(t, rig.run(t))
	require.Equal(t, []treetest.Event{
		treetest.E(1, treetest.Setup),
		treetest.E(1, treetest.Error),
		treetest.E(2, treetest.Setup),
		treetest.E(2, treetest.Done),
	}, log.Events())
}

func TestGroupConstruction(t *testing.T) {
	t.Run("task count aggregates subtrees", func(t *testing.T) {
		g := NewGroup(
			TimerTask(time.Millisecond),
			G(TimerTask(time.Millisecond), TimerTask(time.Millisecond)),
			Sync(func(context.Context) error { return nil }),
		)
		require.Equal(t, 3, g.TaskCount())
	})

	t.Run("later mode overrides earlier", func(t *testing.T) {
		g := NewGroup(Parallel, Sequential)
		require.Equal(t, 1, g.limit)
	})

	t.Run("later policy overrides earlier", func(t *testing.T) {
		g := NewGroup(Workflow(ContinueOnError), Workflow(Optional))
		require.Equal(t, Optional, g.policy)
	})

	t.Run("negative parallel limit panics", func(t *testing.T) {
		require.Panics(t, func() { ParallelLimit(-1) })
	})
}
