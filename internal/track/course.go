package track

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/runcourse/trackgen/internal/config"
	"github.com/runcourse/trackgen/internal/core/event"
	"github.com/runcourse/trackgen/internal/data"
	"github.com/runcourse/trackgen/internal/pool"
	"go.uber.org/zap"
)

// Params are the generation constants of one course.
type Params struct {
	UnitLength        float64
	OriginOffset      float64
	SafetyMargin      float64
	GradeStep         float64
	MinPartLength     int
	MaxPartLength     int
	BackgroundPerPart int
	MaxRedraws        int
	BlockPoolCap      int
	HistorySize       int
}

// ParamsFromConfig copies the [course] section.
func ParamsFromConfig(cc config.CourseConfig) Params {
	return Params{
		UnitLength:        cc.UnitLength,
		OriginOffset:      cc.OriginOffset,
		SafetyMargin:      cc.SafetyMargin,
		GradeStep:         cc.GradeStep,
		MinPartLength:     cc.MinPartLength,
		MaxPartLength:     cc.MaxPartLength,
		BackgroundPerPart: cc.BackgroundPerPart,
		MaxRedraws:        cc.MaxRedraws,
		BlockPoolCap:      cc.BlockPoolCap,
		HistorySize:       cc.HistorySize,
	}
}

// Options wires a course to its data and collaborators. Rules, Mover and
// Rand may be nil.
type Options struct {
	Course    *data.Course
	Grades    *data.GradeTable
	Digest    string
	Rules     Rules
	Instancer Instancer
	Mover     pool.Mover
	Player    PlayerPosition
	Rand      *rand.Rand
	Bus       *event.Bus
	Log       *zap.Logger
	Params    Params
}

// Course is one running course instance. Every method except Close, Closed
// and Err must be called from the game loop goroutine.
type Course struct {
	log     *zap.Logger
	bus     *event.Bus
	runID   string
	catalog *data.Course
	digest  string
	params  Params
	inst    Instancer

	reg        *pool.Registry
	planner    *Planner
	sched      *Scheduler
	placements *Placements
	grade      *Grade
	gen        *Generator
	reclaimer  *Reclaimer
	frontier   Frontier

	startBlock  pool.Handle
	started     bool
	armed       bool
	startedAt   time.Time
	instFails   int
	exhaustions int

	closed atomic.Bool
	mu     sync.Mutex
	err    error
}

// NewCourse validates options and builds an unstarted course.
func NewCourse(opts Options) (*Course, error) {
	switch {
	case opts.Course == nil:
		return nil, errors.New("track: course is required")
	case opts.Grades == nil || opts.Grades.Count() == 0:
		return nil, errors.New("track: grade table is required")
	case opts.Instancer == nil:
		return nil, errors.New("track: instancer is required")
	case opts.Player == nil:
		return nil, errors.New("track: player position is required")
	case opts.Bus == nil:
		return nil, errors.New("track: event bus is required")
	}
	p := opts.Params
	if p.UnitLength <= 0 || p.GradeStep <= 0 {
		return nil, fmt.Errorf("track: unit length %v and grade step %v must be positive", p.UnitLength, p.GradeStep)
	}
	if p.MinPartLength < 1 || p.MaxPartLength < p.MinPartLength {
		return nil, fmt.Errorf("track: invalid part length range [%d, %d]", p.MinPartLength, p.MaxPartLength)
	}
	if err := opts.Course.CheckPools(p.BackgroundPerPart, p.MaxPartLength); err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	if p.HistorySize < 1 {
		p.HistorySize = 1
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	runID := uuid.NewString()
	log = log.With(zap.String("run", runID), zap.String("course", opts.Course.Name))

	c := &Course{
		log:        log,
		bus:        opts.Bus,
		runID:      runID,
		catalog:    opts.Course,
		digest:     opts.Digest,
		params:     p,
		inst:       opts.Instancer,
		reg:        pool.NewRegistry(opts.Mover, p.BlockPoolCap, log.Named("pool")),
		planner:    NewPlanner(rng, p.MinPartLength, p.MaxPartLength),
		placements: NewPlacements(),
		grade:      NewGrade(opts.Grades, p.UnitLength, p.GradeStep),
	}
	c.sched = &Scheduler{
		log:        log.Named("scheduler"),
		rng:        rng,
		reg:        c.reg,
		course:     opts.Course,
		rules:      opts.Rules,
		placements: c.placements,
		maxRedraws: p.MaxRedraws,
		unitLength: p.UnitLength,
		origin:     p.OriginOffset,
	}
	c.gen = &Generator{
		log:        log.Named("generator"),
		rng:        rng,
		bus:        opts.Bus,
		runID:      runID,
		course:     opts.Course,
		reg:        c.reg,
		planner:    c.planner,
		sched:      c.sched,
		placements: c.placements,
		grade:      c.grade,
		inst:       opts.Instancer,
		closed:     c.closed.Load,
		unitLength: p.UnitLength,
		origin:     p.OriginOffset,
		frontier:   &c.frontier,
		history:    NewHistory[pool.BlockDesc](p.HistorySize),
		onFirstRun: func() { c.armed = true },
	}
	c.reclaimer = &Reclaimer{
		log:        log.Named("reclaimer"),
		bus:        opts.Bus,
		runID:      runID,
		reg:        c.reg,
		planner:    c.planner,
		sched:      c.sched,
		placements: c.placements,
		gen:        c.gen,
		frontier:   &c.frontier,
		player:     opts.Player,
		unitLength: p.UnitLength,
		margin:     p.SafetyMargin,
	}
	return c, nil
}

func (c *Course) RunID() string { return c.runID }

// Start builds the background pools, plans every partition, books their
// backgrounds, places the start block and schedules the initial run.
func (c *Course) Start() error {
	return c.start(nil)
}

// start with nil lengths draws each partition's length.
func (c *Course) start(lengths []int) error {
	if c.started {
		return errors.New("track: course already started")
	}
	if c.closed.Load() {
		return ErrCourseClosed
	}
	c.started = true
	c.startedAt = time.Now()

	if err := c.buildBackgrounds(); err != nil {
		return err
	}
	c.reg.Seal()

	var total int
	if lengths != nil {
		total = c.planner.planLengths(c.catalog.Parts, lengths)
	} else {
		total = c.planner.PlanAll(c.catalog.Parts)
	}
	for _, p := range c.planner.Partitions() {
		if err := c.sched.Enqueue(p); err != nil {
			return fmt.Errorf("enqueue partition %d: %w", p.ID, err)
		}
	}
	c.grade.Recompute(c.planner.Partition(0).Length)

	if err := c.placeStartBlock(); err != nil {
		return err
	}
	c.gen.Schedule(-1, total)

	c.log.Info("course started",
		zap.Int32("course_id", c.catalog.ID),
		zap.Int("partitions", len(c.planner.Partitions())),
		zap.Int("planned", total),
		zap.Int("backgrounds", c.reg.Stats().Backgrounds))
	event.Emit(c.bus, event.CourseStarted{
		RunID:      c.runID,
		CourseID:   c.catalog.ID,
		Course:     c.catalog.Name,
		Partitions: len(c.planner.Partitions()),
		Planned:    total,
		Digest:     c.digest,
	})
	return nil
}

// buildBackgrounds instantiates every partition's background entries at the
// holding position. Entries are not authoritative; the course owner places
// them itself.
func (c *Course) buildBackgrounds() error {
	for i, theme := range c.catalog.Parts {
		b := c.catalog.Backdrop(theme)
		if b == nil {
			return fmt.Errorf("partition %d: theme %q has no backdrop: %w", i, theme, ErrPlanningInconsistency)
		}
		for _, v := range composition(b, c.params.BackgroundPerPart) {
			prefab := b.Variants[v].Key
			inst, err := c.inst.CreateInstance(prefab, pool.HoldingPosition, false)
			if err != nil {
				return fmt.Errorf("background %s for partition %d: %w: %w", prefab, i, ErrInstancing, err)
			}
			if _, err := c.reg.AddBackground(i, v, prefab, inst.Handle); err != nil {
				return err
			}
		}
	}
	return nil
}

// composition lists the variant of each pool entry for one backdrop: the
// explicit per-variant counts when given, otherwise n entries round-robin.
func composition(b *data.Backdrop, n int) []int {
	var out []int
	if len(b.Pool) > 0 {
		for v, k := range b.Pool {
			for j := 0; j < k; j++ {
				out = append(out, v)
			}
		}
		return out
	}
	for j := 0; j < n; j++ {
		out = append(out, j%len(b.Variants))
	}
	return out
}

func (c *Course) placeStartBlock() error {
	prefab, ok := c.catalog.Prefab(data.BlockStart, 0)
	if !ok {
		return nil
	}
	inst, err := c.inst.CreateInstance(prefab.Key, pool.Vec3{}, true)
	if err != nil {
		return fmt.Errorf("start block %s: %w: %w", prefab.Key, ErrInstancing, err)
	}
	c.startBlock = inst.Handle
	return nil
}

// Tick advances generation by at most one unit.
func (c *Course) Tick() error {
	if c.closed.Load() {
		return ErrCourseClosed
	}
	if err := c.Err(); err != nil {
		return err
	}
	return c.handle("generate", c.gen.Step())
}

// Reclaim runs one reclamation cycle once the first generation run is done.
func (c *Course) Reclaim() error {
	if c.closed.Load() {
		return ErrCourseClosed
	}
	if err := c.Err(); err != nil {
		return err
	}
	if !c.armed {
		return nil
	}
	return c.handle("reclaim", c.reclaimer.Cycle())
}

// ReclaimPartition reclaims one partition regardless of the player's
// position. Partitions still generating or already empty are left alone.
func (c *Course) ReclaimPartition(id int) (Released, error) {
	if c.closed.Load() {
		return Released{}, ErrCourseClosed
	}
	p := c.planner.Partition(id)
	if p == nil {
		return Released{}, fmt.Errorf("reclaim partition %d: unknown partition", id)
	}
	if !p.Generated || len(p.Queue) == 0 {
		return Released{}, nil
	}
	rel, err := c.reclaimer.reclaim(p)
	return rel, c.handle("reclaim", err)
}

// handle sorts step errors into fatal and retryable ones.
func (c *Course) handle(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCourseClosed):
		return err
	case errors.Is(err, ErrInstancing):
		c.instFails++
		c.log.Warn("instancing failed, retrying next tick", zap.String("op", op), zap.Error(err))
		return err
	case errors.Is(err, pool.ErrExhausted):
		c.exhaustions++
		c.log.Warn("pool exhausted", zap.String("op", op), zap.Error(err))
		return err
	}
	c.fail(err)
	return err
}

func (c *Course) fail(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.mu.Unlock()

	recent := c.gen.history.Items()
	prefabs := make([]string, len(recent))
	for i, d := range recent {
		prefabs[i] = d.Prefab
	}
	c.log.Error("course failed", zap.Error(err),
		zap.Int("created", c.frontier.Created),
		zap.Strings("recent_blocks", prefabs))
	event.Emit(c.bus, event.CourseFailed{RunID: c.runID, Err: err})
}

// Err is the fatal error that stopped the course, if any.
func (c *Course) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Armed reports whether reclamation has started.
func (c *Course) Armed() bool { return c.armed }

// Closed reports whether Close was called. Safe from any goroutine.
func (c *Course) Closed() bool { return c.closed.Load() }

// Close stops the course. Later calls return ErrCourseClosed and an
// instance that completes after Close is not pooled.
func (c *Course) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.log.Info("course closed",
		zap.Int("created", c.frontier.Created),
		zap.Int("reclaimed", c.frontier.Reclaimed),
		zap.Duration("uptime", time.Since(c.startedAt)))
	event.Emit(c.bus, event.CourseClosed{
		RunID:     c.runID,
		Created:   c.frontier.Created,
		Reclaimed: c.frontier.Reclaimed,
	})
}

// IsFatal reports whether err ends the course.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInstancing) &&
		!errors.Is(err, pool.ErrExhausted) &&
		!errors.Is(err, ErrCourseClosed)
}

// PartitionView is a read-only copy of one partition's state.
type PartitionView struct {
	ID        int
	Part      string
	Length    int
	Start     int
	End       int
	Queued    int
	Blocks    int
	Ready     bool
	Generated bool
}

// Snapshot is a point-in-time view of the course for metrics and logs.
type Snapshot struct {
	RunID              string
	Course             string
	Created            int
	Reclaimed          int
	Live               int
	Planned            int
	LiveTarget         int // live units once every planned partition is generated
	Tier               int
	Grade              string
	Pools              pool.Stats
	Placements         int
	PendingRuns        int
	Partitions         []PartitionView // generation order
	Armed              bool
	Closed             bool
	Failed             bool
	InstancingFailures int
	Exhaustions        int
}

func (c *Course) Snapshot() Snapshot {
	s := Snapshot{
		RunID:              c.runID,
		Course:             c.catalog.Name,
		Created:            c.frontier.Created,
		Reclaimed:          c.frontier.Reclaimed,
		Live:               c.frontier.Live(),
		Planned:            c.planner.Cumulative(),
		LiveTarget:         c.planner.Pending(),
		Tier:               c.grade.Tier(),
		Grade:              c.grade.Name(),
		Pools:              c.reg.Stats(),
		Placements:         c.placements.Len(),
		PendingRuns:        c.gen.Pending(),
		Armed:              c.armed,
		Closed:             c.closed.Load(),
		Failed:             c.Err() != nil,
		InstancingFailures: c.instFails,
		Exhaustions:        c.exhaustions,
	}
	for _, p := range c.planner.Order() {
		s.Partitions = append(s.Partitions, PartitionView{
			ID:        p.ID,
			Part:      p.Part,
			Length:    p.Length,
			Start:     p.Start,
			End:       p.End,
			Queued:    len(p.Queue),
			Blocks:    len(p.Blocks),
			Ready:     p.Ready,
			Generated: p.Generated,
		})
	}
	return s
}

// Verify checks the cross-component invariants: pool bookkeeping, partition
// tiling, outstanding reservations and the frontier counters.
func (c *Course) Verify() error {
	if err := c.reg.Verify(); err != nil {
		return err
	}
	prev := 0
	for i, p := range c.planner.Order() {
		if i > 0 && p.Start != prev {
			return fmt.Errorf("partition %d starts at %d, previous ends at %d", p.ID, p.Start, prev)
		}
		if p.End-p.Start != p.Length*GroupSize {
			return fmt.Errorf("partition %d spans %d units for %d groups", p.ID, p.End-p.Start, p.Length)
		}
		if p.Ready && len(p.Queue) != p.Length {
			return fmt.Errorf("partition %d queues %d groups of %d", p.ID, len(p.Queue), p.Length)
		}
		prev = p.End
	}
	for _, pl := range c.placements.List() {
		p := c.planner.Partition(pl.Partition)
		if p == nil || pl.Position < p.Start || pl.Position >= p.End {
			return fmt.Errorf("placement at unit %d lies outside partition %d", pl.Position, pl.Partition)
		}
		if pl.Position < c.frontier.Created {
			return fmt.Errorf("placement at unit %d left behind frontier %d", pl.Position, c.frontier.Created)
		}
	}
	if c.frontier.Reclaimed > c.frontier.Created {
		return fmt.Errorf("reclaimed %d exceeds created %d", c.frontier.Reclaimed, c.frontier.Created)
	}
	if c.frontier.Created > c.planner.Cumulative() {
		return fmt.Errorf("frontier %d past planned boundary %d", c.frontier.Created, c.planner.Cumulative())
	}
	return nil
}

// Frontier returns the generation counters.
func (c *Course) Frontier() Frontier { return c.frontier }

// Grade returns the difficulty controller.
func (c *Course) Grade() *Grade { return c.grade }

// Planner returns the partition planner.
func (c *Course) Planner() *Planner { return c.planner }

// Registry returns the object pools.
func (c *Course) Registry() *pool.Registry { return c.reg }

// Placements returns the reserved special blocks.
func (c *Course) Placements() *Placements { return c.placements }
