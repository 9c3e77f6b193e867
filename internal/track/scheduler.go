package track

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/runcourse/trackgen/internal/data"
	"github.com/runcourse/trackgen/internal/pool"
	"github.com/runcourse/trackgen/internal/scripting"
	"go.uber.org/zap"
)

// Scheduler decides which background piece each group of a partition shows
// and books the pool entries for them ahead of generation.
type Scheduler struct {
	log        *zap.Logger
	rng        *rand.Rand
	reg        *pool.Registry
	course     *data.Course
	rules      Rules
	placements *Placements
	maxRedraws int
	unitLength float64
	origin     float64
	sequence   int
}

// Enqueue fills an empty partition's queue. Each group draws a variant,
// lets the course rules override it, and books a free pool entry, redrawing
// a different variant while the drawn one has none left. On failure nothing
// stays booked and the partition is left not Ready.
func (s *Scheduler) Enqueue(p *Partition) error {
	if len(p.Queue) != 0 {
		return fmt.Errorf("enqueue partition %d: queue not cleared: %w", p.ID, ErrPlanningInconsistency)
	}
	backdrop := s.course.Backdrop(p.Part)
	if backdrop == nil {
		return fmt.Errorf("enqueue partition %d: theme %q has no backdrop: %w", p.ID, p.Part, ErrPlanningInconsistency)
	}
	variants := len(backdrop.Variants)

	queue := make([]QueueEntry, 0, p.Length)
	var reserved []Placement
	for i := 0; i < p.Length; i++ {
		pos := p.Start + i*GroupSize
		drawn := s.rng.Intn(variants)
		variant := drawn

		if s.rules != nil && s.course.Rules != "" {
			plan := s.rules.PlaceGroup(s.course.Rules, scripting.GroupContext{
				Course:    s.course.Name,
				Part:      p.Part,
				Partition: p.ID,
				Group:     i,
				Groups:    p.Length,
				Position:  pos,
				Drawn:     drawn,
				Variants:  variants,
			})
			if plan.Variant >= 0 && plan.Variant < variants {
				variant = plan.Variant
			}
			for _, sp := range plan.Specials {
				if sp.Block < 0 || sp.Block >= len(s.course.Specials) {
					s.log.Warn("rules reserved unknown special block",
						zap.Int("partition", p.ID), zap.Int("block", sp.Block))
					continue
				}
				reserved = append(reserved, Placement{
					Partition: p.ID,
					Position:  pos + sp.Offset,
					Special:   sp.Block,
				})
			}
		}

		bg, err := s.acquire(p, variant, variants)
		if err != nil {
			for _, e := range queue {
				s.reg.ReleaseBackground(e.Background)
			}
			return err
		}
		queue = append(queue, QueueEntry{
			Partition:  p.ID,
			Variant:    bg.Variant,
			Sequence:   s.sequence,
			Position:   pos,
			Background: bg.ID,
		})
		s.sequence++
	}

	p.Queue = queue
	for _, r := range reserved {
		if !s.placements.Add(r) {
			s.log.Debug("special placement already reserved", zap.Int("unit", r.Position))
		}
	}
	p.Ready = true
	return nil
}

// acquire books an entry for variant, redrawing among the other variants
// that still have free entries. Every variant with a free entry stays
// reachable, so the pool is used up before any group fails.
func (s *Scheduler) acquire(p *Partition, variant, variants int) (*pool.Background, error) {
	for attempt := 0; ; attempt++ {
		bg, err := s.reg.AcquireBackground(p.ID, variant)
		if err == nil {
			return bg, nil
		}
		if !errors.Is(err, pool.ErrExhausted) {
			return nil, err
		}
		if attempt >= s.maxRedraws {
			return nil, fmt.Errorf("partition %d: no background after %d redraws: %w", p.ID, attempt, pool.ErrExhausted)
		}
		candidates := make([]int, 0, variants)
		for v := 0; v < variants; v++ {
			if v != variant && s.reg.FreeBackgrounds(p.ID, v) > 0 {
				candidates = append(candidates, v)
			}
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("partition %d: every background variant booked: %w", p.ID, pool.ErrExhausted)
		}
		variant = candidates[s.rng.Intn(len(candidates))]
	}
}

// Dequeue places the background queued for the group starting at unit.
func (s *Scheduler) Dequeue(p *Partition, unit int) (*pool.Background, error) {
	off := unit - p.Start
	if off < 0 || off%GroupSize != 0 || off/GroupSize >= len(p.Queue) {
		return nil, fmt.Errorf("partition %d has no queued background at unit %d: %w", p.ID, unit, ErrPlanningInconsistency)
	}
	e := p.Queue[off/GroupSize]
	if e.Position != unit {
		return nil, fmt.Errorf("partition %d queue entry at unit %d, want %d: %w", p.ID, e.Position, unit, ErrPlanningInconsistency)
	}
	pos := pool.Vec3{Z: float64(unit)*s.unitLength + s.origin}
	if err := s.reg.PlaceBackground(e.Background, unit, pos); err != nil {
		return nil, fmt.Errorf("partition %d: %w: %w", p.ID, ErrPlanningInconsistency, err)
	}
	return s.reg.Background(e.Background), nil
}
