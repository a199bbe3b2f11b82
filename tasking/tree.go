package tasking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/poa00/go-tasktree/loop"
	"github.com/poa00/go-tasktree/taskerr"
	"github.com/poa00/go-tasktree/util"
)

// TreeConfig specifies optional configuration for a TaskTree
type TreeConfig struct {
	Clock         clock.Clock  // a clock that may be replaced by a mock when testing
	Logger        *slog.Logger // receives the runtime's debug logging
	Loop          *loop.Loop   // an externally driven loop; when set the tree never spawns its own driving goroutine
	QueueCapacity int          // the queue capacity of an internally created loop
}

// Validate checks the configuration options and returns an error if any have invalid values.
func (cfg *TreeConfig) Validate() error {
	if cfg.Clock == nil {
		return &taskerr.ConfigurationError{
			Component: "TreeConfig",
			Err:       fmt.Errorf("clock must not be nil"),
		}
	}

	if cfg.Logger == nil {
		return &taskerr.ConfigurationError{
			Component: "TreeConfig",
			Err:       fmt.Errorf("logger must not be nil"),
		}
	}

	if cfg.QueueCapacity < 1 {
		return &taskerr.ConfigurationError{
			Component: "TreeConfig",
			Err:       fmt.Errorf("queue capacity must be greater than zero"),
		}
	}

	return nil
}

// DefaultTreeConfig returns the default configuration options for a
// TaskTree. Options may be overridden before passing to NewTaskTree.
func DefaultTreeConfig() *TreeConfig {
	return &TreeConfig{
		Clock:         clock.New(), // use standard time
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		QueueCapacity: loop.DefaultQueueCapacity,
	}
}

type nodeKind int

const (
	nodeGroup nodeKind = iota
	nodeTask
)

// node is one element of the built tree. Nodes live in a flat arena and
// reference each other by index, so per run state can live in a parallel
// slice and the arena can be reused across runs.
type node struct {
	kind      nodeKind
	parent    int
	taskCount int

	children []int
	limit    int
	policy   WorkflowPolicy
	storages []*storageID
	onSetup  func(context.Context) (SetupResult, error)
	onDone   func(context.Context)
	onError  func(context.Context)

	decl *taskDecl
}

func buildNodes(root *Group) []node {
	var nodes []node
	var walk func(g *Group, parent int) int
	walk = func(g *Group, parent int) int {
		idx := len(nodes)
		sids := make([]*storageID, len(g.storages))
		for i, h := range g.storages {
			sids[i] = h.id()
		}
		nodes = append(nodes, node{
			kind:      nodeGroup,
			parent:    parent,
			taskCount: g.taskCount,
			limit:     g.limit,
			policy:    g.policy,
			storages:  sids,
			onSetup:   g.onSetup,
			onDone:    g.onDone,
			onError:   g.onError,
		})
		for _, c := range g.children {
			var ci int
			if c.task != nil {
				ci = len(nodes)
				nodes = append(nodes, node{
					kind:      nodeTask,
					parent:    idx,
					taskCount: 1,
					decl:      c.task,
				})
			} else {
				ci = walk(c.group, idx)
			}
			nodes[idx].children = append(nodes[idx].children, ci)
		}
		return idx
	}
	walk(root, -1)
	return nodes
}

type runState int

const (
	runIdle runState = iota
	runRunning
	runStopping
	runSkipped
	runDone
	runError
)

// runNode is the per run state of one arena node.
type runNode struct {
	state runState

	// group state
	next      int
	active    int
	doneCount int
	failCount int
	firstErr  error
	storages  map[*storageID]any

	// task state
	adapter Task
	inst    *runInstance
}

// runInstance identifies one started task for the lifetime of a run, so
// that a done signal arriving after cancellation can be told apart from a
// live one.
type runInstance struct {
	node     int
	used     atomic.Bool
	canceled atomic.Bool
}

type frameKey struct{}

// frame identifies the node whose handler is currently executing. It rides
// on the context passed to every handler and is the anchor for storage
// lookups.
type frame struct {
	tree *TaskTree
	node int
}

func withFrame(ctx context.Context, fr *frame) context.Context {
	return context.WithValue(ctx, frameKey{}, fr)
}

func frameFrom(ctx context.Context) *frame {
	fr, _ := ctx.Value(frameKey{}).(*frame)
	return fr
}

// storageLookup resolves a storage handle against the innermost ancestor
// group holding an active instance.
func (fr *frame) storageLookup(sid *storageID) any {
	t := fr.tree
	for i := fr.node; i >= 0; i = t.nodes[i].parent {
		if v, ok := t.rn[i].storages[sid]; ok {
			return v
		}
	}
	return nil
}

func (t *TaskTree) frameCtx(ctx context.Context, idx int) context.Context {
	return withFrame(ctx, &frame{tree: t, node: idx})
}

// A TaskTree drives one run of a group at a time: it walks the built tree,
// starts tasks respecting modes and limits, combines their outcomes per
// workflow policy and manages the storage instances scoped to each group.
// All coordination runs on a single loop; task adapters may use goroutines
// internally, but their completions are marshaled back onto that loop, so
// no two handlers ever execute concurrently.
type TaskTree struct {
	cfg   TreeConfig
	log   *slog.Logger
	nodes []node

	lp atomic.Pointer[loop.Loop]

	running  atomic.Bool
	epoch    atomic.Uint64
	progress atomic.Int64

	rn           []runNode
	result       error
	doneCh       chan struct{}
	notifyFinish func(error)

	storageSetupHooks map[*storageID][]func(any)
	storageDoneHooks  map[*storageID][]func(any)
}

// NewTaskTree creates a tree that will run root when started.
func NewTaskTree(root *Group, cfg *TreeConfig) (*TaskTree, error) {
	if cfg == nil {
		cfg = DefaultTreeConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if root == nil {
		return nil, &taskerr.ConfigurationError{
			Component: "TaskTree",
			Err:       fmt.Errorf("root group must not be nil"),
		}
	}

	t := &TaskTree{
		cfg:               *cfg,
		log:               cfg.Logger,
		nodes:             buildNodes(root),
		storageSetupHooks: make(map[*storageID][]func(any)),
		storageDoneHooks:  make(map[*storageID][]func(any)),
	}
	if cfg.Loop != nil {
		t.lp.Store(cfg.Loop)
	}
	return t, nil
}

func (t *TaskTree) loop() *loop.Loop {
	return t.lp.Load()
}

// TaskCount returns the number of leaf tasks in the tree. Nested trees
// declared via TreeTask count as one opaque task.
func (t *TaskTree) TaskCount() int {
	return t.nodes[0].taskCount
}

// ProgressValue returns the number of leaf tasks accounted for so far in
// the current or last run, counting resolved, cancelled and skipped tasks
// alike. It equals TaskCount exactly when a run completes.
func (t *TaskTree) ProgressValue() int {
	return int(t.progress.Load())
}

// IsRunning reports whether a run is in progress.
func (t *TaskTree) IsRunning() bool {
	return t.running.Load()
}

// Result returns the terminal result of the last run, nil meaning overall
// success. It is only meaningful once the run's Done channel is closed.
func (t *TaskTree) Result() error {
	return t.result
}

// Done returns the channel closed when the current run finishes. Obtain it
// after Start; the channel is replaced on every run.
func (t *TaskTree) Done() <-chan struct{} {
	return t.doneCh
}

// Start begins a run. It returns ErrAlreadyRunning while a run is in
// progress. The root's setup cascade executes synchronously before Start
// returns; completions are then processed on the tree's loop. For a tree
// with an internal loop Start spawns the driving goroutine, whose lifetime
// is bound to ctx: cancelling ctx tears the run down as Stop does. A tree
// with an injected Loop relies on its owner to drive it.
func (t *TaskTree) Start(ctx context.Context) error {
	_, err := t.start(ctx, t.cfg.Loop == nil)
	return err
}

// start begins a run and returns its epoch. The epoch identifies the run:
// queued teardowns and driver goroutines compare it against the current one
// so that leftovers of a finished run never touch a newer one.
func (t *TaskTree) start(ctx context.Context, spawnDriver bool) (uint64, error) {
	if !t.running.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	epoch := t.epoch.Add(1)

	ctx, span := util.StartSpan(ctx, "TaskTree.Start")
	defer span.End()

	if t.loop() == nil {
		lp, err := loop.NewLoop(&loop.LoopConfig{
			Clock:         t.cfg.Clock,
			QueueCapacity: t.cfg.QueueCapacity,
		})
		if err != nil {
			t.running.Store(false)
			return 0, err
		}
		t.lp.Store(lp)
	}

	t.rn = make([]runNode, len(t.nodes))
	t.progress.Store(0)
	t.result = nil
	t.doneCh = make(chan struct{})

	t.log.Debug("task tree started", "tasks", t.TaskCount())

	t.startNode(ctx, 0)

	if spawnDriver && t.running.Load() {
		go t.drive(ctx, epoch)
	}
	return epoch, nil
}

// startNested binds the tree to an enclosing tree's loop and starts it.
// done receives the terminal result, on the shared loop.
func (t *TaskTree) startNested(ctx context.Context, lp *loop.Loop, done func(error)) error {
	t.lp.Store(lp)
	t.notifyFinish = done
	_, err := t.start(ctx, false)
	return err
}

func (t *TaskTree) drive(ctx context.Context, epoch uint64) {
	for t.running.Load() && t.epoch.Load() == epoch {
		if !t.lp.Load().RunOrWait(ctx) {
			t.teardownRun(ctx, epoch)
			return
		}
	}
}

// Run performs a blocking run: it starts the tree and drives its loop
// inline until completion. When ctx is done first, outstanding tasks are
// cancelled, remaining handlers are suppressed and the run resolves with
// ErrTreeCanceled. Combine with context.WithTimeout for a bounded run.
func (t *TaskTree) Run(ctx context.Context) error {
	epoch, err := t.start(ctx, false)
	if err != nil {
		return err
	}
	lp := t.loop()
	for t.running.Load() && t.epoch.Load() == epoch {
		if !lp.RunOrWait(ctx) {
			t.teardownRun(ctx, epoch)
			break
		}
	}
	return t.result
}

// Stop tears down a running tree: outstanding tasks are cancelled without
// their handlers being invoked, storage done hooks are suppressed and the
// run resolves with ErrTreeCanceled. Stop is safe to call from any
// goroutine; the teardown itself executes on the tree's loop.
func (t *TaskTree) Stop() {
	if !t.running.Load() {
		return
	}
	lp := t.loop()
	if lp == nil {
		return
	}
	epoch := t.epoch.Load()
	lp.Enqueue(context.Background(), loop.Func(func(ctx context.Context) {
		t.teardownRun(ctx, epoch)
	}))
}

// teardownRun tears the current run down only while epoch still identifies
// it.
func (t *TaskTree) teardownRun(ctx context.Context, epoch uint64) {
	if t.epoch.Load() != epoch {
		return
	}
	t.teardown(ctx)
}

func (t *TaskTree) addStorageHook(sid *storageID, setup bool, hook func(any)) {
	if setup {
		t.storageSetupHooks[sid] = append(t.storageSetupHooks[sid], hook)
		return
	}
	t.storageDoneHooks[sid] = append(t.storageDoneHooks[sid], hook)
}
