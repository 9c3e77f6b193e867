package pool

import "sort"

// freeIndex keeps per-key FIFO queues of free entry ids. Pushing an id that is
// already present is the caller's bug; Registry guards it with entry flags.
type freeIndex[K comparable] struct {
	free map[K][]int
}

func newFreeIndex[K comparable]() *freeIndex[K] {
	return &freeIndex[K]{free: make(map[K][]int, 32)}
}

func (x *freeIndex[K]) push(k K, id int) {
	x.free[k] = append(x.free[k], id)
}

// pop returns the oldest free id under k. FIFO order spreads wear over the
// pooled instances instead of hammering the most recently released one.
func (x *freeIndex[K]) pop(k K) (int, bool) {
	ids := x.free[k]
	if len(ids) == 0 {
		return 0, false
	}
	id := ids[0]
	x.free[k] = ids[1:]
	return id, true
}

func (x *freeIndex[K]) len(k K) int {
	return len(x.free[k])
}

// ownerIndex tracks which partition currently holds each in-use entry.
type ownerIndex struct {
	byPartition map[int]map[int]struct{}
}

func newOwnerIndex() *ownerIndex {
	return &ownerIndex{byPartition: make(map[int]map[int]struct{}, 8)}
}

func (o *ownerIndex) add(partition, id int) {
	set := o.byPartition[partition]
	if set == nil {
		set = make(map[int]struct{}, 64)
		o.byPartition[partition] = set
	}
	set[id] = struct{}{}
}

func (o *ownerIndex) remove(partition, id int) {
	delete(o.byPartition[partition], id)
}

func (o *ownerIndex) ids(partition int) []int {
	set := o.byPartition[partition]
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (o *ownerIndex) count(partition int) int {
	return len(o.byPartition[partition])
}
