package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runcourse/trackgen/internal/core/event"
	"github.com/runcourse/trackgen/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memStore struct {
	begins   []persist.RunRecord
	appends  [][]persist.JournalEntry
	finishes []persist.RunSummary
	failNext error
}

func (s *memStore) Begin(_ context.Context, rec persist.RunRecord) error {
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.begins = append(s.begins, rec)
	return nil
}

func (s *memStore) Append(_ context.Context, _ string, entries []persist.JournalEntry) error {
	s.appends = append(s.appends, append([]persist.JournalEntry(nil), entries...))
	return nil
}

func (s *memStore) Finish(_ context.Context, _ string, sum persist.RunSummary) error {
	s.finishes = append(s.finishes, sum)
	return nil
}

func deliver(bus *event.Bus) {
	bus.SwapBuffers()
	bus.DispatchAll()
}

func TestJournalWritesRunLifecycle(t *testing.T) {
	bus := event.NewBus()
	store := &memStore{}
	j := NewJournalSystem(store, bus, 42, time.Second, zaptest.NewLogger(t))

	event.Emit(bus, event.CourseStarted{RunID: "run-1", CourseID: 3, Course: "Loop", Partitions: 2, Planned: 60, Digest: "abc"})
	event.Emit(bus, event.GradeEscalated{RunID: "run-1", Tier: 1, Grade: "bumpy", Created: 27})
	event.Emit(bus, event.RunCompleted{RunID: "run-1", Initial: true, Target: 60})
	deliver(bus)
	j.Update(0)

	require.Len(t, store.begins, 1)
	assert.Equal(t, persist.RunRecord{
		RunID: "run-1", CourseID: 3, CourseName: "Loop", Digest: "abc", Partitions: 2, Planned: 60, Seed: 42,
	}, store.begins[0])
	require.Len(t, store.appends, 1)
	require.Len(t, store.appends[0], 2)
	assert.Equal(t, "grade", store.appends[0][0].Kind)
	assert.Equal(t, "run", store.appends[0][1].Kind)
	assert.Equal(t, 60, store.appends[0][1].Created)

	event.Emit(bus, event.PartitionReclaimed{RunID: "run-1", Partition: 0, Blocks: 24, Reclaimed: 24})
	event.Emit(bus, event.CourseClosed{RunID: "run-1", Created: 80, Reclaimed: 24})
	deliver(bus)
	j.Flush()

	require.Len(t, store.appends, 2)
	assert.Equal(t, "reclaim", store.appends[1][0].Kind)
	require.Len(t, store.finishes, 1)
	assert.Equal(t, persist.RunSummary{Status: "closed", Created: 80, Reclaimed: 24, FinalGrade: "bumpy"}, store.finishes[0])

	j.Flush()
	assert.Len(t, store.begins, 1, "run row written once")
	assert.Len(t, store.finishes, 1)
}

func TestJournalRecordsFailure(t *testing.T) {
	bus := event.NewBus()
	store := &memStore{}
	j := NewJournalSystem(store, bus, 0, time.Second, zaptest.NewLogger(t))

	event.Emit(bus, event.CourseStarted{RunID: "run-2"})
	event.Emit(bus, event.CourseFailed{RunID: "run-2", Err: errors.New("planning inconsistency")})
	deliver(bus)
	j.Flush()
	require.Len(t, store.finishes, 1)
	assert.Equal(t, "failed", store.finishes[0].Status)

	event.Emit(bus, event.CourseClosed{RunID: "run-2", Created: 10})
	deliver(bus)
	j.Flush()
	require.Len(t, store.finishes, 2)
	assert.Equal(t, "failed", store.finishes[1].Status, "close keeps the failure")
	assert.Equal(t, "planning inconsistency", store.finishes[1].Error)
	assert.Equal(t, 10, store.finishes[1].Created)
}

func TestJournalRetriesBeginAndDropsEntries(t *testing.T) {
	bus := event.NewBus()
	store := &memStore{failNext: errors.New("db down")}
	j := NewJournalSystem(store, bus, 0, time.Second, zaptest.NewLogger(t))

	event.Emit(bus, event.CourseStarted{RunID: "run-3"})
	event.Emit(bus, event.GradeEscalated{RunID: "run-3", Tier: 1})
	deliver(bus)
	j.Flush()
	assert.Empty(t, store.begins)
	assert.Empty(t, store.appends)

	j.Flush()
	require.Len(t, store.begins, 1)
	assert.Empty(t, store.appends, "entries from the failed batch are dropped")
}
