package track

import (
	"errors"

	"github.com/runcourse/trackgen/internal/pool"
	"github.com/runcourse/trackgen/internal/scripting"
)

// GroupSize is the number of generation units sharing one background piece.
const GroupSize = 6

var (
	// ErrPlanningInconsistency is fatal to the course: partition bookkeeping
	// and the frontier disagree.
	ErrPlanningInconsistency = errors.New("planning inconsistency")
	// ErrInstancing means the instancing collaborator failed; the unit is
	// retried on the next tick.
	ErrInstancing = errors.New("instancing failure")
	// ErrCourseClosed is returned once the course has been torn down.
	ErrCourseClosed = errors.New("course closed")
)

// Instance is what the instancing collaborator hands back.
type Instance struct {
	Handle    pool.Handle
	EndHeight float64
}

// Instancer creates world instances of prefabs. Authoritative instances are
// replicated by the owner of the course.
type Instancer interface {
	CreateInstance(prefab string, pos pool.Vec3, authoritative bool) (Instance, error)
}

// PlayerPosition reports how far along the course the player is.
type PlayerPosition interface {
	CurrentForwardPosition() float64
}

// Rules decides fixed variants and reserved blocks per piece-group.
// *scripting.Engine implements it.
type Rules interface {
	PlaceGroup(name string, g scripting.GroupContext) scripting.GroupPlan
}

// Partition is a contiguous course segment. Identities are recycled for the
// lifetime of the course; only Length, Start, End and Queue change.
type Partition struct {
	ID        int
	Part      string // theme from the course part sequence
	Length    int    // piece-groups
	Start     int    // first unit, inclusive
	End       int    // boundary unit, exclusive
	Queue     []QueueEntry
	Blocks    []int // block pool ids placed for this partition, in unit order
	Ready     bool  // queue filled, generation may enter
	Generated bool  // every unit up to End materialized
}

// Groups is the number of piece-groups queued.
func (p *Partition) Groups() int {
	return len(p.Queue)
}

// FarEdge is the unit just past the last queued group, or -1 when empty.
func (p *Partition) FarEdge() int {
	if len(p.Queue) == 0 {
		return -1
	}
	return p.Queue[len(p.Queue)-1].Position + GroupSize
}

// QueueEntry is one background piece waiting to be placed.
type QueueEntry struct {
	Partition  int
	Variant    int
	Sequence   int // global creation order
	Position   int // absolute unit of the group start
	Background int // matched pool entry id
}

// Placement reserves a block at an exact unit.
type Placement struct {
	Partition int
	Position  int
	Special   int // index into the course's special blocks
}

// Frontier counts generated and reclaimed units.
type Frontier struct {
	Created   int
	Reclaimed int
}

// Live is the number of blocks currently standing on the course.
func (f Frontier) Live() int {
	return f.Created - f.Reclaimed
}
