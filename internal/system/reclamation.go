package system

import (
	"errors"
	"time"

	coresys "github.com/runcourse/trackgen/internal/core/system"
	"github.com/runcourse/trackgen/internal/track"
)

// ReclamationSystem runs a reclamation cycle every interval of game time,
// once the course has finished its first generation run. Phase 2 (Reclaim).
type ReclamationSystem struct {
	course   *track.Course
	runner   *coresys.Runner
	interval time.Duration
	elapsed  time.Duration
}

func NewReclamationSystem(course *track.Course, runner *coresys.Runner, interval time.Duration) *ReclamationSystem {
	return &ReclamationSystem{course: course, runner: runner, interval: interval}
}

func (s *ReclamationSystem) Phase() coresys.Phase { return coresys.PhaseReclaim }

func (s *ReclamationSystem) Update(dt time.Duration) {
	if !s.course.Armed() {
		return
	}
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed -= s.interval

	err := s.course.Reclaim()
	if errors.Is(err, track.ErrCourseClosed) || track.IsFatal(err) {
		s.runner.Halt()
	}
}
