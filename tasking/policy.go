package tasking

import (
	"fmt"
)

// SetupResult is returned by setup handlers to decide whether their node
// proceeds or short-circuits.
type SetupResult int

const (
	// Continue proceeds normally.
	Continue SetupResult = iota
	// StopWithDone skips the remaining work in the branch and reports
	// success.
	StopWithDone
	// StopWithError skips the remaining work in the branch and reports
	// failure.
	StopWithError
)

func (r SetupResult) String() string {
	switch r {
	case Continue:
		return "Continue"
	case StopWithDone:
		return "StopWithDone"
	case StopWithError:
		return "StopWithError"
	default:
		return fmt.Sprintf("SetupResult(%d)", int(r))
	}
}

// WorkflowPolicy derives a group's outcome from its children's outcomes and
// decides whether siblings are cancelled early.
type WorkflowPolicy int

const (
	// StopOnError fails the group as soon as any child fails. Unstarted
	// siblings are skipped and running siblings cancelled. The group
	// succeeds only if all children succeed. It is the default policy.
	StopOnError WorkflowPolicy = iota
	// ContinueOnError runs all children to completion; the group fails if
	// at least one child failed.
	ContinueOnError
	// StopOnDone succeeds the group as soon as any child succeeds; it
	// fails only if all children fail.
	StopOnDone
	// ContinueOnDone runs all children; the group succeeds if at least one
	// child succeeded.
	ContinueOnDone
	// StopOnFinished resolves the group with the outcome of whichever
	// child resolves first; the remaining children are cancelled.
	StopOnFinished
	// Optional runs all children and resolves the group as success
	// regardless of their outcomes.
	Optional
)

func (p WorkflowPolicy) String() string {
	switch p {
	case StopOnError:
		return "StopOnError"
	case ContinueOnError:
		return "ContinueOnError"
	case StopOnDone:
		return "StopOnDone"
	case ContinueOnDone:
		return "ContinueOnDone"
	case StopOnFinished:
		return "StopOnFinished"
	case Optional:
		return "Optional"
	default:
		return fmt.Sprintf("WorkflowPolicy(%d)", int(p))
	}
}

// stopsOn reports whether a child resolving with err triggers early group
// resolution under p.
func (p WorkflowPolicy) stopsOn(err error) bool {
	switch p {
	case StopOnError:
		return err != nil
	case StopOnDone:
		return err == nil
	case StopOnFinished:
		return true
	default:
		return false
	}
}
