package tasking

import (
	"errors"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("task tree already running")

	// ErrTreeCanceled is the result of a run that was torn down before
	// completing.
	ErrTreeCanceled = errors.New("task tree canceled")

	// ErrTaskCanceled is the synthetic resolution delivered to tasks
	// cancelled by a workflow policy or an ancestor being stopped.
	ErrTaskCanceled = errors.New("task canceled")

	// ErrShortCircuit resolves a node whose setup handler returned
	// StopWithError.
	ErrShortCircuit = errors.New("stopped with error")

	// ErrTimeout resolves a task wrapped by WithTimeout that exceeded its
	// deadline.
	ErrTimeout = errors.New("task timed out")
)
