package loop

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MaxTime is the maximum time.Time value
var MaxTime = time.Unix(1<<63-62135596801, 999999999)

// PlannedAction is an interface for actions that are scheduled to run at a
// specific time.
type PlannedAction interface {
	// Time returns the time at which the action is scheduled to run
	Time() time.Time
	// Action returns the action that is scheduled to run
	Action() Action
}

// Planner is an interface for scheduling actions at a specific time.
type Planner interface {
	// ScheduleAction schedules an action to run at a specific time
	ScheduleAction(context.Context, time.Time, Action) PlannedAction
	// RemoveAction removes an action from the planner, returning true if it
	// was found
	RemoveAction(context.Context, PlannedAction) bool
	// PopOverdueActions returns all actions that are overdue and removes
	// them from the planner
	PopOverdueActions(context.Context) []Action
}

// AwarePlanner is a Planner that knows the time of its next action.
type AwarePlanner interface {
	Planner
	// NextActionTime returns the time of the next action to run, or MaxTime
	// if there is none
	NextActionTime(context.Context) time.Time
}

// TimePlanner keeps planned actions in a linked list sorted by time. Actions
// planned for the same time run in insertion order.
type TimePlanner struct {
	Clock clock.Clock

	NextAction *timedAction
	lock       sync.Mutex
}

var _ AwarePlanner = (*TimePlanner)(nil)

type timedAction struct {
	action Action
	time   time.Time
	next   *timedAction
}

var _ PlannedAction = (*timedAction)(nil)

func (a *timedAction) Time() time.Time {
	return a.time
}

func (a *timedAction) Action() Action {
	return a.action
}

func NewTimePlanner(clk clock.Clock) *TimePlanner {
	return &TimePlanner{
		Clock: clk,
	}
}

func (p *TimePlanner) ScheduleAction(ctx context.Context, t time.Time, a Action) PlannedAction {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.NextAction == nil {
		p.NextAction = &timedAction{action: a, time: t}
		return p.NextAction
	}

	curr := p.NextAction
	if t.Before(curr.time) {
		p.NextAction = &timedAction{action: a, time: t, next: curr}
		return p.NextAction
	}
	// advance past equal times so same-time actions keep insertion order
	for curr.next != nil && !t.Before(curr.next.time) {
		curr = curr.next
	}
	curr.next = &timedAction{action: a, time: t, next: curr.next}
	return curr.next
}

func (p *TimePlanner) RemoveAction(ctx context.Context, pa PlannedAction) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	a, ok := pa.(*timedAction)
	if !ok {
		return false
	}

	curr := p.NextAction
	if curr == nil {
		return false
	}

	if curr == a {
		p.NextAction = curr.next
		return true
	}
	for curr.next != nil {
		if curr.next == a {
			curr.next = curr.next.next
			return true
		}
		curr = curr.next
	}
	return false
}

func (p *TimePlanner) PopOverdueActions(ctx context.Context) []Action {
	p.lock.Lock()
	defer p.lock.Unlock()

	var overdue []Action
	now := p.Clock.Now()
	curr := p.NextAction
	for curr != nil && (curr.time.Before(now) || curr.time == now) {
		overdue = append(overdue, curr.action)
		curr = curr.next
	}
	p.NextAction = curr
	return overdue
}

func (p *TimePlanner) NextActionTime(context.Context) time.Time {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.NextAction == nil {
		return MaxTime
	}
	return p.NextAction.time
}
