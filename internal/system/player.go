package system

import (
	"math"
	"sync/atomic"
	"time"

	coresys "github.com/runcourse/trackgen/internal/core/system"
)

// PlayerSystem moves a simulated runner along the course at a fixed speed
// when no client reports positions. Phase 0 (Input).
type PlayerSystem struct {
	speed float64 // world units per second
	pos   atomic.Uint64
}

func NewPlayerSystem(speed float64) *PlayerSystem {
	return &PlayerSystem{speed: speed}
}

func (s *PlayerSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *PlayerSystem) Update(dt time.Duration) {
	s.Set(s.CurrentForwardPosition() + s.speed*dt.Seconds())
}

// CurrentForwardPosition implements track.PlayerPosition.
func (s *PlayerSystem) CurrentForwardPosition() float64 {
	return math.Float64frombits(s.pos.Load())
}

// Set teleports the runner, e.g. from an external position feed.
func (s *PlayerSystem) Set(z float64) {
	s.pos.Store(math.Float64bits(z))
}
