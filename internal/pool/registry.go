package pool

import (
	"errors"
	"fmt"

	"github.com/runcourse/trackgen/internal/data"
	"go.uber.org/zap"
)

// ErrExhausted means no free entry matched the request. Callers retry with
// a different draw or on a later tick.
var ErrExhausted = errors.New("pool exhausted")

// Handle is the opaque reference the instancing collaborator returns.
type Handle uint64

// Vec3 is a world position. Z runs along the course.
type Vec3 struct {
	X, Y, Z float64
}

// HoldingPosition is the off-course parking spot for released instances.
var HoldingPosition = Vec3{Z: -100}

// Mover relocates and (de)activates instances on behalf of the pools.
type Mover interface {
	Move(h Handle, pos Vec3, active bool)
}

// Background is a pooled background piece. Owner partition and variant are
// fixed at construction. Lifecycle: unused -> queued -> in use -> unused.
type Background struct {
	ID        int
	Partition int
	Variant   int
	Prefab    string
	Handle    Handle
	Unit      int // unit position while in use
	InUse     bool
	Queued    bool
}

// BlockDesc describes one materialized obstacle block.
type BlockDesc struct {
	Type      data.BlockType
	Num       int // class within the type
	Partition int
	EndHeight float64
	Unit      int
	Pos       Vec3
	Prefab    string
}

// Block is a pooled obstacle block, reusable by (Type, Num).
type Block struct {
	ID        int
	Desc      BlockDesc
	Partition int
	Handle    Handle
	InUse     bool
}

type bgKey struct {
	partition int
	variant   int
}

type blockKey struct {
	typ data.BlockType
	num int
}

// Registry owns both pools of one course. Not safe for concurrent use; the
// course's game loop is the only caller.
type Registry struct {
	log      *zap.Logger
	mover    Mover
	blockCap int
	sealed   bool

	backgrounds   []*Background
	bgFree        *freeIndex[bgKey]
	bgByPartition map[int][]int
	bgOwners      *ownerIndex

	blocks      []*Block
	blockFree   *freeIndex[blockKey]
	blockOwners *ownerIndex
}

// NewRegistry creates empty pools. blockCap bounds the block pool; 0 means
// unbounded.
func NewRegistry(mover Mover, blockCap int, log *zap.Logger) *Registry {
	return &Registry{
		log:           log,
		mover:         mover,
		blockCap:      blockCap,
		bgFree:        newFreeIndex[bgKey](),
		bgByPartition: make(map[int][]int, 8),
		bgOwners:      newOwnerIndex(),
		blockFree:     newFreeIndex[blockKey](),
		blockOwners:   newOwnerIndex(),
	}
}

// Stats is a point-in-time count of both pools.
type Stats struct {
	Backgrounds       int
	BackgroundsInUse  int
	BackgroundsQueued int
	Blocks            int
	BlocksInUse       int
}

func (r *Registry) Stats() Stats {
	s := Stats{Backgrounds: len(r.backgrounds), Blocks: len(r.blocks)}
	for _, b := range r.backgrounds {
		if b.InUse {
			s.BackgroundsInUse++
		}
		if b.Queued {
			s.BackgroundsQueued++
		}
	}
	for _, b := range r.blocks {
		if b.InUse {
			s.BlocksInUse++
		}
	}
	return s
}

// Verify checks the pool invariants: queued and in-use are exclusive, every
// in-use entry is indexed under exactly its own partition, and free lists
// only hold idle entries.
func (r *Registry) Verify() error {
	for _, b := range r.backgrounds {
		if b.InUse && b.Queued {
			return fmt.Errorf("background %d both queued and in use", b.ID)
		}
	}
	if err := verifyOwners("background", r.bgOwners, func(id int) (int, bool) {
		b := r.backgrounds[id]
		return b.Partition, b.InUse
	}, len(r.backgrounds)); err != nil {
		return err
	}
	if err := verifyOwners("block", r.blockOwners, func(id int) (int, bool) {
		b := r.blocks[id]
		return b.Partition, b.InUse
	}, len(r.blocks)); err != nil {
		return err
	}
	seen := make(map[int]bool)
	for _, ids := range r.bgFree.free {
		for _, id := range ids {
			b := r.backgrounds[id]
			if b.InUse || b.Queued || seen[id] {
				return fmt.Errorf("background %d listed free while busy or twice", id)
			}
			seen[id] = true
		}
	}
	clear(seen)
	for _, ids := range r.blockFree.free {
		for _, id := range ids {
			if r.blocks[id].InUse || seen[id] {
				return fmt.Errorf("block %d listed free while in use or twice", id)
			}
			seen[id] = true
		}
	}
	return nil
}

func verifyOwners(kind string, owners *ownerIndex, entry func(id int) (int, bool), total int) error {
	owner := make(map[int]int, total)
	for partition, set := range owners.byPartition {
		for id := range set {
			if prev, dup := owner[id]; dup {
				return fmt.Errorf("%s %d in use by partitions %d and %d", kind, id, prev, partition)
			}
			owner[id] = partition
			p, inUse := entry(id)
			if !inUse || p != partition {
				return fmt.Errorf("%s %d indexed under partition %d but owned by %d (in use %v)",
					kind, id, partition, p, inUse)
			}
		}
	}
	for id := 0; id < total; id++ {
		if _, inUse := entry(id); inUse {
			if _, ok := owner[id]; !ok {
				return fmt.Errorf("%s %d in use but not indexed", kind, id)
			}
		}
	}
	return nil
}

func (r *Registry) park(h Handle) {
	if r.mover != nil {
		r.mover.Move(h, HoldingPosition, false)
	}
}

func (r *Registry) show(h Handle, pos Vec3) {
	if r.mover != nil {
		r.mover.Move(h, pos, true)
	}
}
