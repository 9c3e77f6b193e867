package persist

import (
	"context"
	"fmt"
	"time"
)

// RunRecord describes a course run when it starts.
type RunRecord struct {
	RunID      string
	CourseID   int32
	CourseName string
	Digest     string
	Partitions int
	Planned    int
	Seed       int64
}

// JournalEntry is one notable event of a run.
type JournalEntry struct {
	Kind      string // "run", "reclaim", "grade"
	Partition int
	Blocks    int
	Tier      int
	Grade     string
	Created   int
	Reclaimed int
	LoggedAt  time.Time
}

// RunSummary closes a run.
type RunSummary struct {
	Status     string // "closed", "failed"
	Created    int
	Reclaimed  int
	FinalGrade string
	Error      string
}

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Begin inserts the run row.
func (r *RunRepo) Begin(ctx context.Context, rec RunRecord) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO course_runs (run_id, course_id, course_name, data_digest, partitions, planned, seed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.RunID, rec.CourseID, rec.CourseName, rec.Digest, rec.Partitions, rec.Planned, rec.Seed,
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", rec.RunID, err)
	}
	return nil
}

// Append writes a batch of journal entries in a single transaction and
// bumps the run's running totals to the last entry.
func (r *RunRepo) Append(ctx context.Context, runID string, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO course_journal (run_id, kind, partition, blocks, tier, grade, created, reclaimed, logged_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			runID, e.Kind, e.Partition, e.Blocks, e.Tier, e.Grade, e.Created, e.Reclaimed, e.LoggedAt,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	last := entries[len(entries)-1]
	if _, err := tx.Exec(ctx,
		`UPDATE course_runs SET created = GREATEST(created, $2), reclaimed = GREATEST(reclaimed, $3)
		 WHERE run_id = $1`,
		runID, last.Created, last.Reclaimed,
	); err != nil {
		return fmt.Errorf("journal totals: %w", err)
	}

	return tx.Commit(ctx)
}

// Finish records the final state of a run.
func (r *RunRepo) Finish(ctx context.Context, runID string, s RunSummary) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE course_runs
		 SET status = $2, created = $3, reclaimed = $4, final_grade = $5, error = $6, finished_at = NOW()
		 WHERE run_id = $1`,
		runID, s.Status, s.Created, s.Reclaimed, s.FinalGrade, s.Error,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}
