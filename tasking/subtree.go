package tasking

import (
	"context"
)

// TreeTaskAdapter runs a nested task tree as one opaque task of an
// enclosing tree. The nested tree runs on the enclosing tree's loop, so
// its handlers interleave with the outer ones without concurrency. Its
// storages are scoped to the nested tree alone.
type TreeTaskAdapter struct {
	Tree *TaskTree
}

var _ Task = (*TreeTaskAdapter)(nil)

func (a *TreeTaskAdapter) Start(ctx context.Context, done func(error)) {
	fr := frameFrom(ctx)
	if fr == nil {
		panic("nested tree started outside a task tree run")
	}
	if err := a.Tree.startNested(ctx, fr.tree.loop(), done); err != nil {
		done(err)
	}
}

// Cancel tears the nested run down synchronously. The runtime invokes it
// on the shared loop, so no marshaling is needed.
func (a *TreeTaskAdapter) Cancel() {
	a.Tree.teardown(context.Background())
}

// TreeTask declares a nested tree running root as a single task of the
// enclosing group. It counts as one toward the enclosing tree's TaskCount
// regardless of its own size, and its progress is not aggregated.
func TreeTask(root *Group, opts ...TaskOption[*TreeTaskAdapter]) Item {
	return NewTask(func() *TreeTaskAdapter {
		tree, err := NewTaskTree(root, nil)
		if err != nil {
			panic(err.Error())
		}
		return &TreeTaskAdapter{Tree: tree}
	}, opts...)
}
