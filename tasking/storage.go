package tasking

import (
	"context"
)

// StorageHandle identifies a tree scoped storage declaration independently
// of its value type.
type StorageHandle interface {
	id() *storageID
}

type storageID struct {
	newInstance func() any
}

// TreeStorage is a typed handle to data shared by the handlers of a
// subtree. Declare it in a group with Storage; every run of that group
// creates a fresh instance, accessible through Get for the duration of the
// run. Parallel runs and re-entrant sub-trees each get their own instance.
type TreeStorage[T any] struct {
	sid *storageID
}

var _ StorageHandle = (*TreeStorage[int])(nil)

// NewTreeStorage creates a new storage handle.
func NewTreeStorage[T any]() *TreeStorage[T] {
	return &TreeStorage[T]{
		sid: &storageID{
			newInstance: func() any { return new(T) },
		},
	}
}

func (s *TreeStorage[T]) id() *storageID {
	return s.sid
}

// Get returns the instance active for the current run. It panics when
// called outside a run or when no ancestor group declares this storage.
func (s *TreeStorage[T]) Get(ctx context.Context) *T {
	fr := frameFrom(ctx)
	if fr == nil {
		panic("storage accessed outside a task tree run")
	}
	v := fr.storageLookup(s.sid)
	if v == nil {
		panic("storage is not declared by any ancestor group")
	}
	return v.(*T)
}

// Storage declares the handle in the enclosing group. Entering the group
// during a run creates the instance; leaving it destroys the instance.
func Storage(h StorageHandle) Item {
	return Item{kind: itemStorage, storage: h}
}

// OnStorageSetup registers fn on the tree, to be invoked with every
// instance created for st during subsequent runs. Register hooks before
// starting the tree.
func OnStorageSetup[T any](t *TaskTree, st *TreeStorage[T], fn func(*T)) {
	t.addStorageHook(st.sid, true, func(v any) { fn(v.(*T)) })
}

// OnStorageDone registers fn on the tree, to be invoked with every instance
// of st when its declaring group resolves. The hook is not invoked for
// instances destroyed by stopping the tree mid-run.
func OnStorageDone[T any](t *TaskTree, st *TreeStorage[T], fn func(*T)) {
	t.addStorageHook(st.sid, false, func(v any) { fn(v.(*T)) })
}
