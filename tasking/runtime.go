package tasking

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poa00/go-tasktree/loop"
	"github.com/poa00/go-tasktree/util"
)

func (t *TaskTree) startNode(ctx context.Context, idx int) {
	if t.nodes[idx].kind == nodeGroup {
		t.startGroup(ctx, idx)
	} else {
		t.startTask(ctx, idx)
	}
}

func (t *TaskTree) startGroup(ctx context.Context, idx int) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	rn.state = runRunning

	t.activateStorages(idx)

	if n.onSetup != nil {
		res, serr := n.onSetup(t.frameCtx(ctx, idx))
		switch res {
		case Continue:
		case StopWithDone:
			t.resolveGroup(ctx, idx, nil)
			return
		case StopWithError:
			if serr == nil {
				serr = ErrShortCircuit
			}
			t.resolveGroup(ctx, idx, serr)
			return
		default:
			panic(fmt.Sprintf("unexpected setup result: %v", res))
		}
	}

	if len(n.children) == 0 {
		t.resolveGroup(ctx, idx, nil)
		return
	}

	t.fillSlots(ctx, idx)
}

// fillSlots starts queued children while the group has free slots. A
// started child may resolve synchronously and cascade back into this
// group, so the state is re-checked on every iteration.
func (t *TaskTree) fillSlots(ctx context.Context, idx int) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	for rn.state == runRunning && rn.next < len(n.children) && (n.limit == 0 || rn.active < n.limit) {
		c := n.children[rn.next]
		rn.next++
		rn.active++
		t.startNode(ctx, c)
	}
}

func (t *TaskTree) startTask(ctx context.Context, idx int) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	rn.state = runRunning
	rn.adapter = n.decl.create()
	rn.inst = &runInstance{node: idx}

	ctx, span := util.StartSpan(ctx, "TaskTree.startTask",
		trace.WithAttributes(attribute.Int("node", idx)))
	defer span.End()

	if n.decl.onSetup != nil {
		switch res := n.decl.onSetup(t.frameCtx(ctx, idx), rn.adapter); res {
		case Continue:
		case StopWithDone:
			t.resolveTask(ctx, idx, nil, false)
			return
		case StopWithError:
			t.resolveTask(ctx, idx, ErrShortCircuit, false)
			return
		default:
			panic(fmt.Sprintf("unexpected setup result: %v", res))
		}
	}

	t.log.Debug("task started", "node", idx)
	rn.adapter.Start(t.frameCtx(ctx, idx), t.taskDone(rn.inst))
}

// taskDone returns the completion callback handed to the adapter of one
// run instance. It may be called from any goroutine; the resolution is
// marshaled onto the tree's loop. A late signal from a cancelled instance
// is dropped, a second signal from a live one is a programming error.
func (t *TaskTree) taskDone(inst *runInstance) func(error) {
	return func(err error) {
		if !inst.used.CompareAndSwap(false, true) {
			if inst.canceled.Load() {
				return
			}
			panic("task reported done twice")
		}
		t.loop().Enqueue(context.Background(), loop.Func(func(ctx context.Context) {
			if inst.canceled.Load() {
				return
			}
			t.resolveTask(ctx, inst.node, err, true)
		}))
	}
}

// resolveTask settles one task and reports the outcome to its parent
// group. Handlers are skipped when the task's setup short circuited.
func (t *TaskTree) resolveTask(ctx context.Context, idx int, err error, invokeHandlers bool) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	if err == nil {
		rn.state = runDone
	} else {
		rn.state = runError
	}
	t.progress.Add(1)
	t.log.Debug("task resolved", "node", idx, "err", err)

	if invokeHandlers {
		if err == nil {
			if n.decl.onDone != nil {
				n.decl.onDone(t.frameCtx(ctx, idx), rn.adapter)
			}
		} else if n.decl.onError != nil {
			n.decl.onError(t.frameCtx(ctx, idx), rn.adapter, err)
		}
	}

	t.childResolved(ctx, n.parent, err)
}

// childResolved records a child's outcome in its parent group and decides
// what the group does next: stop early per policy, start further children
// or resolve.
func (t *TaskTree) childResolved(ctx context.Context, idx int, err error) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	rn.active--
	if err == nil {
		rn.doneCount++
	} else {
		rn.failCount++
		if rn.firstErr == nil {
			rn.firstErr = err
		}
	}

	if rn.state != runRunning {
		// the group is already resolving; the counts recorded above feed
		// its final result
		return
	}

	if n.policy.stopsOn(err) {
		// the stopping child's own result becomes the group's result
		t.stopGroup(ctx, idx, err)
		return
	}

	t.fillSlots(ctx, idx)
	if rn.state == runRunning && rn.active == 0 && rn.next == len(n.children) {
		t.resolveGroup(ctx, idx, t.finalResult(idx))
	}
}

// finalResult derives a group's outcome once all children resolved without
// an early stop.
func (t *TaskTree) finalResult(idx int) error {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	switch n.policy {
	case StopOnError, ContinueOnError:
		if rn.failCount > 0 {
			return rn.firstErr
		}
		return nil
	case StopOnDone, ContinueOnDone:
		if rn.doneCount > 0 {
			return nil
		}
		if rn.failCount > 0 {
			return rn.firstErr
		}
		return nil
	case StopOnFinished, Optional:
		return nil
	default:
		panic(fmt.Sprintf("unexpected workflow policy: %v", n.policy))
	}
}

// stopGroup cancels the group's outstanding children and resolves it with
// result. Cancellations run synchronously in declaration order before the
// group itself resolves.
func (t *TaskTree) stopGroup(ctx context.Context, idx int, result error) {
	t.rn[idx].state = runStopping
	for _, c := range t.nodes[idx].children {
		t.cancelNode(ctx, c)
	}
	t.resolveGroup(ctx, idx, result)
}

// cancelNode cancels one running child. Cancelled tasks resolve with
// ErrTaskCanceled and their error handlers are invoked; cancelled
// subgroups cancel their own children first.
func (t *TaskTree) cancelNode(ctx context.Context, idx int) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	if rn.state != runRunning {
		return
	}
	if n.kind == nodeTask {
		rn.inst.canceled.Store(true)
		rn.adapter.Cancel()
		t.log.Debug("task canceled", "node", idx)
		t.resolveTask(ctx, idx, ErrTaskCanceled, true)
		return
	}
	rn.state = runStopping
	for _, c := range n.children {
		t.cancelNode(ctx, c)
	}
	t.resolveGroup(ctx, idx, ErrTaskCanceled)
}

// resolveGroup settles one group: children that never started are skipped
// for progress accounting, the matching group hook runs, storage instances
// are destroyed and the outcome propagates to the parent, or finishes the
// run at the root.
func (t *TaskTree) resolveGroup(ctx context.Context, idx int, err error) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]

	t.skipUnstarted(idx)
	if err == nil {
		rn.state = runDone
	} else {
		rn.state = runError
	}
	t.log.Debug("group resolved", "node", idx, "err", err)

	if err == nil {
		if n.onDone != nil {
			n.onDone(t.frameCtx(ctx, idx))
		}
	} else if n.onError != nil {
		n.onError(t.frameCtx(ctx, idx))
	}

	t.deactivateStorages(idx)

	if n.parent >= 0 {
		t.childResolved(ctx, n.parent, err)
		return
	}
	t.finish(err)
}

// skipUnstarted advances progress for direct children that will never
// start, by their full task count.
func (t *TaskTree) skipUnstarted(idx int) {
	for _, c := range t.nodes[idx].children {
		crn := &t.rn[c]
		if crn.state != runIdle {
			continue
		}
		crn.state = runSkipped
		if cnt := t.nodes[c].taskCount; cnt > 0 {
			t.progress.Add(int64(cnt))
		}
	}
}

func (t *TaskTree) activateStorages(idx int) {
	n := &t.nodes[idx]
	if len(n.storages) == 0 {
		return
	}
	rn := &t.rn[idx]
	rn.storages = make(map[*storageID]any, len(n.storages))
	for _, sid := range n.storages {
		inst := sid.newInstance()
		rn.storages[sid] = inst
		for _, hook := range t.storageSetupHooks[sid] {
			hook(inst)
		}
	}
	t.log.Debug("storages activated", "node", idx, "count", len(n.storages))
}

// deactivateStorages destroys the group's storage instances, invoking the
// tree's storage done hooks in declaration order.
func (t *TaskTree) deactivateStorages(idx int) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	for _, sid := range n.storages {
		inst, ok := rn.storages[sid]
		if !ok {
			continue
		}
		for _, hook := range t.storageDoneHooks[sid] {
			hook(inst)
		}
	}
	rn.storages = nil
}

func (t *TaskTree) finish(err error) {
	t.result = err
	t.running.Store(false)
	t.log.Debug("task tree finished", "err", err, "progress", t.ProgressValue())
	if t.notifyFinish != nil {
		t.notifyFinish(err)
	}
	close(t.doneCh)
}

// teardown destroys a run in flight: adapters are cancelled, handlers and
// storage done hooks are suppressed and the run resolves with
// ErrTreeCanceled. Progress is left where the run got to.
func (t *TaskTree) teardown(ctx context.Context) {
	if !t.running.Load() {
		return
	}
	t.destroyNode(0)
	err := ErrTreeCanceled
	if cerr := ctx.Err(); cerr != nil {
		err = fmt.Errorf("%w: %w", ErrTreeCanceled, cerr)
	}
	t.result = err
	t.running.Store(false)
	t.log.Debug("task tree torn down")
	if t.notifyFinish != nil {
		t.notifyFinish(err)
	}
	close(t.doneCh)
}

func (t *TaskTree) destroyNode(idx int) {
	n := &t.nodes[idx]
	rn := &t.rn[idx]
	if rn.state != runRunning && rn.state != runStopping {
		return
	}
	if n.kind == nodeTask {
		rn.inst.canceled.Store(true)
		rn.adapter.Cancel()
		rn.state = runError
		return
	}
	for _, c := range n.children {
		t.destroyNode(c)
	}
	rn.storages = nil
	rn.state = runError
}
