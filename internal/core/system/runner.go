package system

import (
	"sort"
	"sync/atomic"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// keep their registration order.
type Runner struct {
	systems []System
	sorted  bool
	halted  atomic.Bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once. A halted runner does nothing.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if r.halted.Load() {
			return
		}
		s.Update(dt)
	}
}

// Halt stops the runner after the current system. The game loop exits on
// the next tick.
func (r *Runner) Halt() {
	r.halted.Store(true)
}

func (r *Runner) Halted() bool {
	return r.halted.Load()
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
