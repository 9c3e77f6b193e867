package pool

import "fmt"

// AddBackground registers a pre-instantiated background piece. Only valid
// before Seal; pools never grow once the course runs.
func (r *Registry) AddBackground(partition, variant int, prefab string, h Handle) (*Background, error) {
	if r.sealed {
		return nil, fmt.Errorf("add background to partition %d: registry sealed", partition)
	}
	b := &Background{
		ID:        len(r.backgrounds),
		Partition: partition,
		Variant:   variant,
		Prefab:    prefab,
		Handle:    h,
	}
	r.backgrounds = append(r.backgrounds, b)
	r.bgByPartition[partition] = append(r.bgByPartition[partition], b.ID)
	r.bgFree.push(bgKey{partition, variant}, b.ID)
	r.park(h)
	return b, nil
}

// Seal freezes the background pool.
func (r *Registry) Seal() {
	r.sealed = true
}

// Background returns an entry by id, or nil.
func (r *Registry) Background(id int) *Background {
	if id < 0 || id >= len(r.backgrounds) {
		return nil
	}
	return r.backgrounds[id]
}

// FreeBackgrounds counts entries of a variant that can still be queued.
func (r *Registry) FreeBackgrounds(partition, variant int) int {
	return r.bgFree.len(bgKey{partition, variant})
}

// AcquireBackground takes a free entry of (partition, variant) and marks it
// queued. It never returns an entry that is queued or in use.
func (r *Registry) AcquireBackground(partition, variant int) (*Background, error) {
	id, ok := r.bgFree.pop(bgKey{partition, variant})
	if !ok {
		return nil, fmt.Errorf("background partition %d variant %d: %w", partition, variant, ErrExhausted)
	}
	b := r.backgrounds[id]
	b.Queued = true
	return b, nil
}

// PlaceBackground moves a queued entry into the world at unit/pos.
func (r *Registry) PlaceBackground(id, unit int, pos Vec3) error {
	b := r.Background(id)
	if b == nil {
		return fmt.Errorf("background %d: no such entry", id)
	}
	if !b.Queued {
		return fmt.Errorf("background %d: place without queue (in use %v)", id, b.InUse)
	}
	b.Queued = false
	b.InUse = true
	b.Unit = unit
	r.bgOwners.add(b.Partition, b.ID)
	r.show(b.Handle, pos)
	return nil
}

// ReleaseBackground returns a queued or in-use entry to the pool and parks
// its instance. Releasing an idle entry is a no-op.
func (r *Registry) ReleaseBackground(id int) bool {
	b := r.Background(id)
	if b == nil || (!b.InUse && !b.Queued) {
		return false
	}
	if b.InUse {
		r.bgOwners.remove(b.Partition, b.ID)
	}
	b.InUse = false
	b.Queued = false
	b.Unit = 0
	r.park(b.Handle)
	r.bgFree.push(bgKey{b.Partition, b.Variant}, b.ID)
	return true
}

// ReleaseBackgrounds releases every queued or in-use entry of a partition
// and returns how many were released.
func (r *Registry) ReleaseBackgrounds(partition int) int {
	n := 0
	for _, id := range r.bgByPartition[partition] {
		if r.ReleaseBackground(id) {
			n++
		}
	}
	return n
}

// InUseBackgrounds counts placed backgrounds of a partition.
func (r *Registry) InUseBackgrounds(partition int) int {
	return r.bgOwners.count(partition)
}
