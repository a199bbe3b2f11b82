// Package proc runs external commands as tasks. A Process adapter starts
// the command in its own process group, reports the exit result through
// the tree and terminates the whole group when cancelled.
package proc
