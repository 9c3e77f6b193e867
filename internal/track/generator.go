package track

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/runcourse/trackgen/internal/core/event"
	"github.com/runcourse/trackgen/internal/data"
	"github.com/runcourse/trackgen/internal/pool"
	"go.uber.org/zap"
)

// run is one generation pass: advance the frontier until target.
// partition is -1 for the initial fill.
type run struct {
	partition int
	target    int
}

// Generator advances the frontier one unit per Step.
type Generator struct {
	log        *zap.Logger
	rng        *rand.Rand
	bus        *event.Bus
	runID      string
	course     *data.Course
	reg        *pool.Registry
	planner    *Planner
	sched      *Scheduler
	placements *Placements
	grade      *Grade
	inst       Instancer
	closed     func() bool
	unitLength float64
	origin     float64

	frontier *Frontier
	history  *History[pool.BlockDesc]
	runs     []run
	current  *Partition
	curStart int // current's Start when entered; a replan moves it

	firstDone  bool
	onFirstRun func()
}

// Schedule queues a run up to target. Runs are served in order.
func (g *Generator) Schedule(partition, target int) {
	g.runs = append(g.runs, run{partition: partition, target: target})
}

// Pending is the number of runs not yet completed.
func (g *Generator) Pending() int {
	return len(g.runs)
}

// Step materializes the unit at the frontier. Retryable failures
// (ErrInstancing, pool.ErrExhausted) leave the frontier where it was so the
// same unit is tried again on the next tick.
func (g *Generator) Step() error {
	if len(g.runs) == 0 {
		return nil
	}
	if g.frontier.Created >= g.runs[0].target {
		g.completeRuns()
		return nil
	}

	unit := g.frontier.Created
	part, err := g.planner.Lookup(unit)
	if err != nil {
		return err
	}
	if !part.Ready {
		// re-enqueue of this partition failed earlier; reclamation retries it
		return nil
	}
	if part != g.current || part.Start != g.curStart {
		g.current = part
		g.curStart = part.Start
		g.grade.Recompute(part.Length)
	}

	t, num, reserved := g.choose(unit)
	desc, err := g.materialize(part, unit, t, num)
	if err != nil {
		return err
	}
	if reserved {
		p, _ := g.placements.Take(unit)
		event.Emit(g.bus, event.PlacementConsumed{Partition: p.Partition, Unit: unit, Special: p.Special})
	} else {
		g.grade.Consume(t)
	}

	if unit%GroupSize == 0 {
		if _, err := g.sched.Dequeue(part, unit); err != nil {
			return err
		}
	}

	g.frontier.Created++
	g.history.Push(desc)
	g.log.Debug("unit generated",
		zap.Int("unit", unit),
		zap.Int("partition", part.ID),
		zap.Stringer("type", desc.Type),
		zap.Int("num", desc.Num))

	if g.grade.Check(g.frontier.Created, part.Length) {
		g.log.Info("grade escalated",
			zap.Int("tier", g.grade.Tier()),
			zap.String("grade", g.grade.Name()),
			zap.Int("created", g.frontier.Created))
		event.Emit(g.bus, event.GradeEscalated{
			RunID:   g.runID,
			Tier:    g.grade.Tier(),
			Grade:   g.grade.Name(),
			Created: g.frontier.Created,
		})
	}

	if g.frontier.Created >= g.runs[0].target {
		g.completeRuns()
	}
	return nil
}

// choose picks the block for unit: a reservation if one exists, otherwise a
// rate/quota draw, falling back to a plane block once quotas run dry.
func (g *Generator) choose(unit int) (data.BlockType, int, bool) {
	if p, ok := g.placements.At(unit); ok {
		return data.BlockSpecial, p.Special, true
	}
	t, ok := g.grade.Draw(g.rng, func(t data.BlockType) bool {
		return len(g.course.BlockPrefabs(t)) > 0
	})
	if !ok {
		t = data.BlockPlane
	}
	prefabs := g.course.BlockPrefabs(t)
	num := g.rng.Intn(len(prefabs))
	if last, ok := g.history.Last(); ok && len(prefabs) > 1 && last.Type == t && last.Num == num {
		num = (num + 1 + g.rng.Intn(len(prefabs)-1)) % len(prefabs)
	}
	return t, num, false
}

// materialize reuses a free pooled block of (t, num) or instantiates a new
// one and registers it under part.
func (g *Generator) materialize(part *Partition, unit int, t data.BlockType, num int) (pool.BlockDesc, error) {
	pos := pool.Vec3{Z: float64(unit)*g.unitLength + g.origin}

	b, err := g.reg.AcquireBlock(t, num, part.ID, unit, pos)
	if err == nil {
		part.Blocks = append(part.Blocks, b.ID)
		return b.Desc, nil
	}
	if !errors.Is(err, pool.ErrExhausted) {
		return pool.BlockDesc{}, err
	}
	if !g.reg.CanRegister() {
		return pool.BlockDesc{}, fmt.Errorf("unit %d: %w", unit, err)
	}

	prefab, ok := g.course.Prefab(t, num)
	if !ok {
		return pool.BlockDesc{}, fmt.Errorf("unit %d: no prefab for %s/%d: %w", unit, t, num, ErrPlanningInconsistency)
	}
	inst, err := g.inst.CreateInstance(prefab.Key, pos, true)
	if err != nil {
		return pool.BlockDesc{}, fmt.Errorf("unit %d %s: %w: %w", unit, prefab.Key, ErrInstancing, err)
	}
	if g.closed() {
		// torn down while instancing; the instance is not pooled
		return pool.BlockDesc{}, ErrCourseClosed
	}

	desc := pool.BlockDesc{
		Type:      t,
		Num:       num,
		Partition: part.ID,
		EndHeight: inst.EndHeight,
		Unit:      unit,
		Pos:       pos,
		Prefab:    prefab.Key,
	}
	b, err = g.reg.RegisterBlock(desc, inst.Handle)
	if err != nil {
		return pool.BlockDesc{}, err
	}
	part.Blocks = append(part.Blocks, b.ID)
	return desc, nil
}

func (g *Generator) completeRuns() {
	for len(g.runs) > 0 && g.frontier.Created >= g.runs[0].target {
		r := g.runs[0]
		g.runs = g.runs[1:]

		var done []event.GeneratedPartition
		for _, p := range g.planner.Order() {
			if !p.Ready || p.Generated || p.End > g.frontier.Created {
				continue
			}
			p.Generated = true
			done = append(done, event.GeneratedPartition{
				ID:     p.ID,
				Part:   p.Part,
				Blocks: g.blockDescs(p),
			})
		}

		g.log.Info("generation run completed",
			zap.Int("partition", r.partition),
			zap.Int("target", r.target),
			zap.Int("partitions", len(done)))
		event.Emit(g.bus, event.RunCompleted{
			RunID:      g.runID,
			Initial:    r.partition < 0,
			Target:     r.target,
			Partitions: done,
		})

		if !g.firstDone {
			g.firstDone = true
			if g.onFirstRun != nil {
				g.onFirstRun()
			}
		}
	}
}

func (g *Generator) blockDescs(p *Partition) []pool.BlockDesc {
	out := make([]pool.BlockDesc, 0, len(p.Blocks))
	for _, id := range p.Blocks {
		if b := g.reg.Block(id); b != nil {
			out = append(out, b.Desc)
		}
	}
	return out
}
