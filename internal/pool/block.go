package pool

import (
	"fmt"

	"github.com/runcourse/trackgen/internal/data"
	"go.uber.org/zap"
)

// Block returns an entry by id, or nil.
func (r *Registry) Block(id int) *Block {
	if id < 0 || id >= len(r.blocks) {
		return nil
	}
	return r.blocks[id]
}

// AcquireBlock takes a free block of (t, num) and places it for partition at
// unit/pos. ErrExhausted when none is free; the caller instantiates instead.
func (r *Registry) AcquireBlock(t data.BlockType, num, partition, unit int, pos Vec3) (*Block, error) {
	id, ok := r.blockFree.pop(blockKey{t, num})
	if !ok {
		return nil, fmt.Errorf("block %s/%d: %w", t, num, ErrExhausted)
	}
	b := r.blocks[id]
	b.InUse = true
	b.Partition = partition
	b.Desc.Partition = partition
	b.Desc.Unit = unit
	b.Desc.Pos = pos
	r.blockOwners.add(partition, b.ID)
	r.show(b.Handle, pos)
	return b, nil
}

// CanRegister reports whether the block pool may take one more entry.
func (r *Registry) CanRegister() bool {
	return r.blockCap <= 0 || len(r.blocks) < r.blockCap
}

// RegisterBlock adds a freshly instantiated block, already placed and in use
// by desc.Partition.
func (r *Registry) RegisterBlock(desc BlockDesc, h Handle) (*Block, error) {
	if !r.CanRegister() {
		return nil, fmt.Errorf("block pool at capacity %d: %w", r.blockCap, ErrExhausted)
	}
	b := &Block{
		ID:        len(r.blocks),
		Desc:      desc,
		Partition: desc.Partition,
		Handle:    h,
		InUse:     true,
	}
	r.blocks = append(r.blocks, b)
	r.blockOwners.add(b.Partition, b.ID)
	r.log.Debug("block registered",
		zap.Int("id", b.ID),
		zap.Stringer("type", desc.Type),
		zap.Int("num", desc.Num),
		zap.Int("partition", desc.Partition))
	return b, nil
}

// ReleaseBlock parks an in-use block and makes it reusable. Releasing an
// idle block is a no-op.
func (r *Registry) ReleaseBlock(id int) bool {
	b := r.Block(id)
	if b == nil || !b.InUse {
		return false
	}
	r.blockOwners.remove(b.Partition, b.ID)
	b.InUse = false
	r.park(b.Handle)
	r.blockFree.push(blockKey{b.Desc.Type, b.Desc.Num}, b.ID)
	return true
}

// ReleaseBlocks releases every in-use block of a partition and returns the
// number released.
func (r *Registry) ReleaseBlocks(partition int) int {
	n := 0
	for _, id := range r.blockOwners.ids(partition) {
		if r.ReleaseBlock(id) {
			n++
		}
	}
	return n
}

// InUseBlocks counts placed blocks of a partition.
func (r *Registry) InUseBlocks(partition int) int {
	return r.blockOwners.count(partition)
}
