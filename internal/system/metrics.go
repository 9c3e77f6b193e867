package system

import (
	"time"

	"github.com/runcourse/trackgen/internal/core/event"
	coresys "github.com/runcourse/trackgen/internal/core/system"
	"github.com/runcourse/trackgen/internal/metrics"
	"github.com/runcourse/trackgen/internal/track"
)

// MetricsSystem mirrors course state into the Prometheus collector each
// tick and counts lifecycle events. Phase 4 (Output).
type MetricsSystem struct {
	course    *track.Course
	collector *metrics.Collector
}

func NewMetricsSystem(course *track.Course, collector *metrics.Collector, bus *event.Bus) *MetricsSystem {
	s := &MetricsSystem{course: course, collector: collector}
	event.Subscribe(bus, func(e event.PartitionReclaimed) { collector.PartitionReclaimed(e.Blocks) })
	event.Subscribe(bus, func(event.GradeEscalated) { collector.GradeEscalated() })
	event.Subscribe(bus, func(event.RunCompleted) { collector.RunCompleted() })
	return s
}

func (s *MetricsSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *MetricsSystem) Update(_ time.Duration) {
	s.collector.Observe(s.course.Snapshot())
}
