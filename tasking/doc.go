// Package tasking provides a declarative concurrency engine: asynchronous
// tasks compose into groups, groups nest into a tree, and execution modes,
// workflow policies and lifecycle hooks declare how the tree runs and how
// outcomes combine. A TaskTree runs the declaration on a single loop, so
// handlers never execute concurrently and runs are deterministic under a
// mock clock.
//
// Groups declare their bodies as plain values. A sequential pipeline that
// stops at the first failure is the default; modes and policies amend it:
//
//	g := tasking.NewGroup(
//		tasking.ParallelLimit(2),
//		tasking.Workflow(tasking.ContinueOnError),
//		tasking.TimerTask(time.Second),
//		tasking.TimerTask(2*time.Second),
//	)
//
// Custom operations implement the two method Task contract and are
// declared with NewTask; TreeStorage passes data between handlers without
// shared variables; Barrier synchronizes unrelated subtrees.
package tasking
