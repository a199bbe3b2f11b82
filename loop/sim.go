package loop

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/poa00/go-tasktree/util"
)

// Sim deterministically drives a set of loops sharing a mock clock. It runs
// every due action and jumps the clock to the time of the next planned
// action once all loops are idle.
type Sim struct {
	clk   *clock.Mock
	loops []*Loop
}

func NewSim(clk *clock.Mock) *Sim {
	return &Sim{
		clk:   clk,
		loops: make([]*Loop, 0),
	}
}

func (s *Sim) Clock() *clock.Mock {
	return s.clk
}

// Add adds a loop to the simulation
func (s *Sim) Add(l *Loop) {
	s.loops = append(s.loops, l)
}

// Remove removes a loop from the simulation
func (s *Sim) Remove(l *Loop) {
	for i, ll := range s.loops {
		if ll == l {
			s.loops = append(s.loops[:i], s.loops[i+1:]...)
		}
	}
}

// Run runs the loops until none of them has actions left to run. Work that
// never becomes ready, such as a waiter on a barrier that is never advanced,
// is left unrun.
func (s *Sim) Run(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "Sim.Run")
	defer span.End()

	for {
		ran := false
		for _, l := range s.loops {
			for l.RunOne(ctx) {
				ran = true
			}
		}
		if ran {
			continue
		}

		minTime := MaxTime
		for _, l := range s.loops {
			if t := l.NextActionTime(ctx); t.Before(minTime) {
				minTime = t
			}
		}
		if minTime == MaxTime {
			return
		}
		if minTime.After(s.clk.Now()) {
			s.clk.Set(minTime)
		}
	}
}
