package tasking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/poa00/go-tasktree/internal/treetest"
	"github.com/poa00/go-tasktree/loop"
)

// testRig wires a tree to a mock clock and a deterministic single
// goroutine driver, so traces and timings are exact.
type testRig struct {
	clk  *clock.Mock
	lp   *loop.Loop
	sim  *loop.Sim
	tree *TaskTree
}

func newRig(t *testing.T, root *Group) *testRig {
	t.Helper()

	clk := clock.NewMock()
	lp, err := loop.NewLoop(&loop.LoopConfig{
		Clock:         clk,
		QueueCapacity: loop.DefaultQueueCapacity,
	})
	require.NoError(t, err)

	sim := loop.NewSim(clk)
	sim.Add(lp)

	cfg := DefaultTreeConfig()
	cfg.Clock = clk
	cfg.Loop = lp

	tree, err := NewTaskTree(root, cfg)
	require.NoError(t, err)

	return &testRig{clk: clk, lp: lp, sim: sim, tree: tree}
}

// run starts the tree and drives it until no ready work remains.
func (r *testRig) run(t *testing.T) error {
	t.Helper()
	require.NoError(t, r.tree.Start(context.Background()))
	r.sim.Run(context.Background())
	return r.tree.Result()
}

// report declares a timer task recording its lifecycle in log under id. A
// non-nil result makes it fail after d.
func report(log *treetest.Log, id int, d time.Duration, result error) Item {
	return NewTask(
		func() *Timer { return &Timer{Duration: d, Result: result} },
		OnSetup(func(_ context.Context, _ *Timer) SetupResult {
			log.Record(id, treetest.Setup)
			return Continue
		}),
		OnDone(func(_ context.Context, _ *Timer) {
			log.Record(id, treetest.Done)
		}),
		OnError(func(_ context.Context, _ *Timer, _ error) {
			log.Record(id, treetest.Error)
		}),
	)
}

func taskErr(id int) error {
	return fmt.Errorf("task %d failed", id)
}

// hangTask starts and never completes on its own.
type hangTask struct {
	canceled bool
}

func (h *hangTask) Start(ctx context.Context, done func(error)) {}

func (h *hangTask) Cancel() { h.canceled = true }

// hang declares a hangTask recording its lifecycle in log under id and
// capturing the adapter instance.
func hang(log *treetest.Log, id int, captured **hangTask) Item {
	return NewTask(
		func() *hangTask { return &hangTask{} },
		OnSetup(func(_ context.Context, h *hangTask) SetupResult {
			if captured != nil {
				*captured = h
			}
			log.Record(id, treetest.Setup)
			return Continue
		}),
		OnDone(func(_ context.Context, _ *hangTask) {
			log.Record(id, treetest.Done)
		}),
		OnError(func(_ context.Context, _ *hangTask, _ error) {
			log.Record(id, treetest.Error)
		}),
	)
}
