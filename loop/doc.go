// Package loop provides an abstraction for single worker multi threaded
// applications. The work a task tree coordinates is often multi threaded by
// nature (processes, network requests), but having a sequential execution
// brings many benefits such as deterministic testing, easier debugging,
// sequential tracing, and freedom from locks in the coordination logic.
package loop
