package system

import (
	"context"
	"time"

	"github.com/runcourse/trackgen/internal/core/event"
	coresys "github.com/runcourse/trackgen/internal/core/system"
	"github.com/runcourse/trackgen/internal/persist"
	"go.uber.org/zap"
)

// RunStore is the persistence side of the run journal. *persist.RunRepo
// implements it.
type RunStore interface {
	Begin(ctx context.Context, rec persist.RunRecord) error
	Append(ctx context.Context, runID string, entries []persist.JournalEntry) error
	Finish(ctx context.Context, runID string, s persist.RunSummary) error
}

// JournalSystem records course lifecycle events and writes them out in one
// batch per tick. Writes are best effort: a failed batch is logged and
// dropped. Phase 4 (Output).
type JournalSystem struct {
	store   RunStore
	log     *zap.Logger
	timeout time.Duration
	seed    int64

	runID   string
	begin   *persist.RunRecord
	pending []persist.JournalEntry
	finish  *persist.RunSummary
	grade   string
	failure string
	begun   bool
}

func NewJournalSystem(store RunStore, bus *event.Bus, seed int64, timeout time.Duration, log *zap.Logger) *JournalSystem {
	s := &JournalSystem{store: store, log: log, timeout: timeout, seed: seed}
	event.Subscribe(bus, s.onStarted)
	event.Subscribe(bus, s.onRunCompleted)
	event.Subscribe(bus, s.onReclaimed)
	event.Subscribe(bus, s.onGrade)
	event.Subscribe(bus, s.onFailed)
	event.Subscribe(bus, s.onClosed)
	return s
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *JournalSystem) Update(_ time.Duration) {
	s.Flush()
}

func (s *JournalSystem) onStarted(e event.CourseStarted) {
	s.runID = e.RunID
	s.begin = &persist.RunRecord{
		RunID:      e.RunID,
		CourseID:   e.CourseID,
		CourseName: e.Course,
		Digest:     e.Digest,
		Partitions: e.Partitions,
		Planned:    e.Planned,
		Seed:       s.seed,
	}
}

func (s *JournalSystem) onRunCompleted(e event.RunCompleted) {
	s.pending = append(s.pending, persist.JournalEntry{
		Kind:      "run",
		Partition: -1,
		Blocks:    len(e.Partitions),
		Created:   e.Target,
		LoggedAt:  time.Now(),
	})
}

func (s *JournalSystem) onReclaimed(e event.PartitionReclaimed) {
	s.pending = append(s.pending, persist.JournalEntry{
		Kind:      "reclaim",
		Partition: e.Partition,
		Blocks:    e.Blocks,
		Reclaimed: e.Reclaimed,
		LoggedAt:  time.Now(),
	})
}

func (s *JournalSystem) onGrade(e event.GradeEscalated) {
	s.grade = e.Grade
	s.pending = append(s.pending, persist.JournalEntry{
		Kind:      "grade",
		Partition: -1,
		Tier:      e.Tier,
		Grade:     e.Grade,
		Created:   e.Created,
		LoggedAt:  time.Now(),
	})
}

func (s *JournalSystem) onFailed(e event.CourseFailed) {
	s.failure = e.Err.Error()
	s.finish = &persist.RunSummary{Status: "failed", FinalGrade: s.grade, Error: s.failure}
}

func (s *JournalSystem) onClosed(e event.CourseClosed) {
	status := "closed"
	if s.failure != "" {
		status = "failed"
	}
	s.finish = &persist.RunSummary{
		Status:     status,
		Created:    e.Created,
		Reclaimed:  e.Reclaimed,
		FinalGrade: s.grade,
		Error:      s.failure,
	}
}

// Flush writes whatever accumulated since the last flush. Entries are held
// back until the run row exists.
func (s *JournalSystem) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.begin != nil {
		if err := s.store.Begin(ctx, *s.begin); err != nil {
			s.log.Warn("journal: begin run failed", zap.String("run", s.runID), zap.Error(err))
			s.pending = s.pending[:0]
			return
		}
		s.begin = nil
		s.begun = true
	}
	if !s.begun {
		return
	}
	if len(s.pending) > 0 {
		if err := s.store.Append(ctx, s.runID, s.pending); err != nil {
			s.log.Warn("journal: append failed", zap.String("run", s.runID),
				zap.Int("entries", len(s.pending)), zap.Error(err))
		}
		s.pending = s.pending[:0]
	}
	if s.finish != nil {
		if err := s.store.Finish(ctx, s.runID, *s.finish); err != nil {
			s.log.Warn("journal: finish failed", zap.String("run", s.runID), zap.Error(err))
		}
		s.finish = nil
	}
}
