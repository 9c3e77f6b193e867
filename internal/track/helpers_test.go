package track

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/runcourse/trackgen/internal/core/event"
	"github.com/runcourse/trackgen/internal/data"
	"github.com/runcourse/trackgen/internal/pool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testCourses = `
courses:
  - id: 7
    name: Testville
    parts: [alpha, beta, gamma]
    start_block: { key: start_gate }
    special_blocks:
      - { key: special_flat }
    backdrops:
      - theme: alpha
        variants: [{ key: a0 }, { key: a1 }, { key: a2 }]
      - theme: beta
        variants: [{ key: b0 }, { key: b1 }]
      - theme: gamma
        variants: [{ key: g0 }]
    blocks:
      plane: [{ key: plane_0 }, { key: plane_1 }]
      hill: [{ key: hill_0, end_height: 4 }]
      gap: [{ key: gap_0 }]
      wall: []
      cliff: []
      earthquake: []
      valley: []
`

const testGrades = `
grades:
  - { grade: g0, rate_plane: 60, rate_hill: 30, rate_gap: 10, num_plane: 5 }
  - { grade: g1, rate_plane: 40, rate_hill: 40, rate_gap: 20 }
  - { grade: g2, rate_plane: 20, rate_hill: 40, rate_gap: 40 }
`

var errSceneDown = errors.New("scene unavailable")

// fakeScene hands out sequential handles and remembers where every
// instance was last moved.
type fakeScene struct {
	next     pool.Handle
	created  []string
	auth     map[pool.Handle]bool
	pos      map[pool.Handle]pool.Vec3
	active   map[pool.Handle]bool
	failNext int
	onCreate func(prefab string)
}

func newFakeScene() *fakeScene {
	return &fakeScene{
		auth:   make(map[pool.Handle]bool),
		pos:    make(map[pool.Handle]pool.Vec3),
		active: make(map[pool.Handle]bool),
	}
}

func (s *fakeScene) CreateInstance(prefab string, pos pool.Vec3, authoritative bool) (Instance, error) {
	if s.failNext > 0 {
		s.failNext--
		return Instance{}, errSceneDown
	}
	if s.onCreate != nil {
		s.onCreate(prefab)
	}
	s.next++
	s.created = append(s.created, prefab)
	s.auth[s.next] = authoritative
	s.pos[s.next] = pos
	return Instance{Handle: s.next, EndHeight: 1}, nil
}

func (s *fakeScene) Move(h pool.Handle, pos pool.Vec3, active bool) {
	s.pos[h] = pos
	s.active[h] = active
}

type fakePlayer struct {
	z float64
}

func (p *fakePlayer) CurrentForwardPosition() float64 { return p.z }

type harness struct {
	course *Course
	scene  *fakeScene
	player *fakePlayer
	bus    *event.Bus
	events []any
}

func testParams() Params {
	return Params{
		UnitLength:        75,
		OriginOffset:      150,
		SafetyMargin:      200,
		GradeStep:         2000,
		MinPartLength:     3,
		MaxPartLength:     7,
		BackgroundPerPart: 7,
		MaxRedraws:        32,
		HistorySize:       5,
	}
}

func loadTestCourse(t *testing.T) (*data.Course, *data.GradeTable) {
	t.Helper()
	courses, err := data.ParseCourseTable([]byte(testCourses))
	require.NoError(t, err)
	grades, err := data.ParseGradeTable([]byte(testGrades))
	require.NoError(t, err)
	return courses.Get(7), grades
}

// newHarness builds an unstarted course. mutate may adjust the options.
func newHarness(t *testing.T, seed int64, mutate func(*Options)) *harness {
	t.Helper()
	c, grades := loadTestCourse(t)
	h := &harness{scene: newFakeScene(), player: &fakePlayer{}, bus: event.NewBus()}
	opts := Options{
		Course:    c,
		Grades:    grades,
		Instancer: h.scene,
		Mover:     h.scene,
		Player:    h.player,
		Rand:      rand.New(rand.NewSource(seed)),
		Bus:       h.bus,
		Log:       zaptest.NewLogger(t),
		Params:    testParams(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	course, err := NewCourse(opts)
	require.NoError(t, err)
	h.course = course

	record := func(e any) { h.events = append(h.events, e) }
	event.Subscribe(h.bus, func(e event.CourseStarted) { record(e) })
	event.Subscribe(h.bus, func(e event.RunCompleted) { record(e) })
	event.Subscribe(h.bus, func(e event.PartitionReclaimed) { record(e) })
	event.Subscribe(h.bus, func(e event.GradeEscalated) { record(e) })
	event.Subscribe(h.bus, func(e event.PlacementConsumed) { record(e) })
	event.Subscribe(h.bus, func(e event.CourseFailed) { record(e) })
	event.Subscribe(h.bus, func(e event.CourseClosed) { record(e) })
	return h
}

// startHarness builds and starts a course with fixed partition lengths.
func startHarness(t *testing.T, seed int64, lengths []int, mutate func(*Options)) *harness {
	t.Helper()
	h := newHarness(t, seed, mutate)
	require.NoError(t, h.course.start(lengths))
	return h
}

// generateTo ticks until the frontier reaches unit or the tick budget runs out.
func (h *harness) generateTo(t *testing.T, unit int) {
	t.Helper()
	for i := 0; i < unit*4 && h.course.frontier.Created < unit; i++ {
		require.NoError(t, h.course.Tick())
	}
	require.Equal(t, unit, h.course.frontier.Created)
}

func (h *harness) dispatch() {
	h.bus.SwapBuffers()
	h.bus.DispatchAll()
}

func eventsOf[T any](h *harness) []T {
	var out []T
	for _, e := range h.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
