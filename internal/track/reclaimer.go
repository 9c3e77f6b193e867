package track

import (
	"errors"
	"fmt"

	"github.com/runcourse/trackgen/internal/core/event"
	"github.com/runcourse/trackgen/internal/pool"
	"go.uber.org/zap"
)

// Reclaimer returns the pieces of partitions the player has left behind to
// the pools and re-plans those partitions at the end of the course.
type Reclaimer struct {
	log        *zap.Logger
	bus        *event.Bus
	runID      string
	reg        *pool.Registry
	planner    *Planner
	sched      *Scheduler
	placements *Placements
	gen        *Generator
	frontier   *Frontier
	player     PlayerPosition
	unitLength float64
	margin     float64
}

// Released counts what one release returned to the pools.
type Released struct {
	Backgrounds int
	Blocks      int
	Placements  int
}

// Cycle runs one reclamation pass: it retries partitions whose queue could
// not be refilled earlier, then reclaims at most one partition behind the
// player.
func (r *Reclaimer) Cycle() error {
	for _, p := range r.planner.Order() {
		if p.Ready {
			continue
		}
		if err := r.refill(p); err != nil {
			return err
		}
	}

	threshold := r.player.CurrentForwardPosition() - r.margin
	p, ok := r.Candidate(threshold)
	if !ok {
		return nil
	}
	_, err := r.reclaim(p)
	return err
}

// Candidate is the first generated partition, in generation order, whose far
// edge is behind threshold.
func (r *Reclaimer) Candidate(threshold float64) (*Partition, bool) {
	for _, p := range r.planner.Order() {
		if !p.Generated || len(p.Queue) == 0 {
			continue
		}
		if float64(p.FarEdge())*r.unitLength < threshold {
			return p, true
		}
	}
	return nil, false
}

func (r *Reclaimer) reclaim(p *Partition) (Released, error) {
	rel, err := r.Release(p)
	if err != nil {
		return rel, err
	}
	if _, err := r.planner.Replan(p.ID, r.frontier.Reclaimed); err != nil {
		return rel, err
	}

	r.log.Info("partition reclaimed",
		zap.Int("partition", p.ID),
		zap.String("part", p.Part),
		zap.Int("blocks", rel.Blocks),
		zap.Int("backgrounds", rel.Backgrounds),
		zap.Int("reclaimed", r.frontier.Reclaimed),
		zap.Int("new_start", p.Start),
		zap.Int("new_length", p.Length))
	event.Emit(r.bus, event.PartitionReclaimed{
		RunID:       r.runID,
		Partition:   p.ID,
		Blocks:      rel.Blocks,
		Backgrounds: rel.Backgrounds,
		Placements:  rel.Placements,
		Reclaimed:   r.frontier.Reclaimed,
		NewStart:    p.Start,
		NewLength:   p.Length,
	})

	return rel, r.refill(p)
}

// Release returns every background and block of p to the pools and clears
// its queue. Releasing an empty partition changes nothing. A queued
// background without a matching live pool entry is ErrPlanningInconsistency
// and leaves the partition untouched.
func (r *Reclaimer) Release(p *Partition) (Released, error) {
	if len(p.Queue) == 0 && len(p.Blocks) == 0 {
		return Released{}, nil
	}
	for _, q := range p.Queue {
		b := r.reg.Background(q.Background)
		if b == nil || b.Partition != p.ID || (!b.Queued && !b.InUse) {
			return Released{}, fmt.Errorf("release partition %d: background %d at unit %d has no live pool entry: %w",
				p.ID, q.Background, q.Position, ErrPlanningInconsistency)
		}
	}
	rel := Released{
		Backgrounds: r.reg.ReleaseBackgrounds(p.ID),
		Blocks:      r.reg.ReleaseBlocks(p.ID),
		Placements:  r.placements.DropPartition(p.ID),
	}
	r.frontier.Reclaimed += rel.Blocks
	p.Queue = nil
	p.Blocks = nil
	p.Generated = false
	p.Ready = false
	return rel, nil
}

// refill enqueues p's backgrounds and schedules its generation run. A pool
// shortfall leaves p not Ready for the next cycle.
func (r *Reclaimer) refill(p *Partition) error {
	if err := r.sched.Enqueue(p); err != nil {
		if errors.Is(err, pool.ErrExhausted) {
			r.log.Warn("partition enqueue deferred",
				zap.Int("partition", p.ID), zap.Error(err))
		}
		return err
	}
	r.gen.Schedule(p.ID, p.End)
	return nil
}
