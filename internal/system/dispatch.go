package system

import (
	"time"

	"github.com/runcourse/trackgen/internal/core/event"
	coresys "github.com/runcourse/trackgen/internal/core/system"
)

// EventDispatchSystem delivers the events emitted during the previous tick.
// Phase 3 (Dispatch).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhaseDispatch }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
