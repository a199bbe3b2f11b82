package tasking

import (
	"context"
	"fmt"
)

// A Group composes tasks and nested groups into one schedulable unit. It is
// an immutable declarative description once built; the same Group may be
// run by any number of trees, concurrently or repeatedly.
type Group struct {
	children  []child
	storages  []StorageHandle
	limit     int
	policy    WorkflowPolicy
	onSetup   func(context.Context) (SetupResult, error)
	onDone    func(context.Context)
	onError   func(context.Context)
	taskCount int
}

type child struct {
	task  *taskDecl
	group *Group
}

// NewGroup builds a group from its items. Children keep their declaration
// order; a later mode or policy item overrides an earlier one.
func NewGroup(items ...Item) *Group {
	g := &Group{limit: 1, policy: StopOnError}
	for _, it := range items {
		switch it.kind {
		case itemTask:
			g.children = append(g.children, child{task: it.task})
			g.taskCount++
		case itemGroup:
			g.children = append(g.children, child{group: it.group})
			g.taskCount += it.group.taskCount
		case itemStorage:
			g.storages = append(g.storages, it.storage)
		case itemLimit:
			g.limit = it.limit
		case itemPolicy:
			g.policy = it.policy
		case itemOnSetup:
			g.onSetup = it.groupSetup
		case itemOnDone:
			g.onDone = it.hook
		case itemOnError:
			g.onError = it.hook
		default:
			panic(fmt.Sprintf("unexpected item kind: %d", it.kind))
		}
	}
	return g
}

// TaskCount returns the number of leaf tasks declared in the subtree.
// Nested trees declared via TreeTask count as a single opaque task and Sync
// steps count as zero.
func (g *Group) TaskCount() int {
	return g.taskCount
}

// G declares a child group inline.
func G(items ...Item) Item {
	return GroupItem(NewGroup(items...))
}

// GroupItem declares a previously built group as a child.
func GroupItem(g *Group) Item {
	return Item{kind: itemGroup, group: g}
}

// Sequential runs children one after another in declaration order. It is
// the default mode.
var Sequential = Item{kind: itemLimit, limit: 1}

// Parallel starts all children eagerly, in declaration order.
var Parallel = Item{kind: itemLimit, limit: 0}

// ParallelLimit caps the number of concurrently running children. Slots
// are refilled in declaration order as children resolve. Zero means no
// limit and one is equivalent to Sequential.
func ParallelLimit(n int) Item {
	if n < 0 {
		panic(fmt.Sprintf("negative parallel limit: %d", n))
	}
	return Item{kind: itemLimit, limit: n}
}

// Workflow sets the group's workflow policy.
func Workflow(p WorkflowPolicy) Item {
	return Item{kind: itemPolicy, policy: p}
}

// OnGroupSetup runs fn when the group is entered, before any child starts.
// Returning StopWithDone or StopWithError resolves the group without
// starting any child.
func OnGroupSetup(fn func(context.Context) SetupResult) Item {
	return Item{
		kind: itemOnSetup,
		groupSetup: func(ctx context.Context) (SetupResult, error) {
			return fn(ctx), nil
		},
	}
}

// OnGroupDone runs fn once the group has resolved successfully.
func OnGroupDone(fn func(context.Context)) Item {
	return Item{kind: itemOnDone, hook: fn}
}

// OnGroupError runs fn once the group has failed or been cancelled.
func OnGroupError(fn func(context.Context)) Item {
	return Item{kind: itemOnError, hook: fn}
}
