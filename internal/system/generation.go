package system

import (
	"errors"
	"time"

	coresys "github.com/runcourse/trackgen/internal/core/system"
	"github.com/runcourse/trackgen/internal/track"
	"go.uber.org/zap"
)

// GenerationSystem advances the course frontier by one unit per tick.
// A fatal course error halts the runner. Phase 1 (Generate).
type GenerationSystem struct {
	course *track.Course
	runner *coresys.Runner
	log    *zap.Logger
}

func NewGenerationSystem(course *track.Course, runner *coresys.Runner, log *zap.Logger) *GenerationSystem {
	return &GenerationSystem{course: course, runner: runner, log: log}
}

func (s *GenerationSystem) Phase() coresys.Phase { return coresys.PhaseGenerate }

func (s *GenerationSystem) Update(_ time.Duration) {
	err := s.course.Tick()
	if errors.Is(err, track.ErrCourseClosed) || track.IsFatal(err) {
		if !s.runner.Halted() {
			s.log.Info("generation stopped", zap.Error(err))
		}
		s.runner.Halt()
	}
}
