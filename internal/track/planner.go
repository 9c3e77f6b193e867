package track

import (
	"fmt"
	"math/rand"
	"sort"
)

// Planner lays partitions end to end along the unit axis.
//
//	partition   0                       1                ...
//	group       0     6     12    18    24    30    ...
//	unit        0 1 2 3 4 5 6 7 ...
//
// Partitions are recycled: a reclaimed partition is re-planned after the
// current last one, so generation order differs from identity order.
type Planner struct {
	rng        *rand.Rand
	minLen     int
	maxLen     int
	parts      []*Partition
	order      []*Partition // generation order, Start strictly increasing
	cumulative int          // units planned so far, never decreases
	pending    int          // cumulative minus reclaimed at the last re-plan
}

func NewPlanner(rng *rand.Rand, minLen, maxLen int) *Planner {
	return &Planner{rng: rng, minLen: minLen, maxLen: maxLen}
}

func (p *Planner) drawLength() int {
	return p.minLen + p.rng.Intn(p.maxLen-p.minLen+1)
}

// PlanAll creates one partition per theme with a random length and returns
// the total number of units of the initial run.
func (p *Planner) PlanAll(themes []string) int {
	lengths := make([]int, len(themes))
	for i := range lengths {
		lengths[i] = p.drawLength()
	}
	return p.planLengths(themes, lengths)
}

func (p *Planner) planLengths(themes []string, lengths []int) int {
	p.parts = make([]*Partition, len(themes))
	p.order = make([]*Partition, 0, len(themes))
	p.cumulative = 0
	for i, theme := range themes {
		part := &Partition{ID: i, Part: theme}
		p.parts[i] = part
		p.place(part, lengths[i])
	}
	p.pending = p.cumulative
	return p.cumulative
}

func (p *Planner) place(part *Partition, length int) {
	part.Length = length
	part.Start = p.cumulative
	part.End = p.cumulative + length*GroupSize
	p.cumulative = part.End
	p.order = append(p.order, part)
}

// Replan gives a reclaimed partition a fresh length and moves it behind the
// current last partition. reclaimed is the frontier's reclaimed count.
func (p *Planner) Replan(id, reclaimed int) (*Partition, error) {
	part := p.Partition(id)
	if part == nil {
		return nil, fmt.Errorf("replan partition %d: %w", id, ErrPlanningInconsistency)
	}
	for i, q := range p.order {
		if q == part {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.place(part, p.drawLength())
	p.pending = p.cumulative - reclaimed
	return part, nil
}

// Lookup returns the partition containing unit.
func (p *Planner) Lookup(unit int) (*Partition, error) {
	i := sort.Search(len(p.order), func(i int) bool { return p.order[i].End > unit })
	if i == len(p.order) || p.order[i].Start > unit {
		return nil, fmt.Errorf("current-partition lookup for unit %d: %w", unit, ErrPlanningInconsistency)
	}
	return p.order[i], nil
}

// Partition returns a partition by identity, or nil.
func (p *Planner) Partition(id int) *Partition {
	if id < 0 || id >= len(p.parts) {
		return nil
	}
	return p.parts[id]
}

// Partitions returns partitions in identity order.
func (p *Planner) Partitions() []*Partition {
	return p.parts
}

// Order returns partitions in generation order.
func (p *Planner) Order() []*Partition {
	return p.order
}

// Cumulative is the boundary of the last planned partition.
func (p *Planner) Cumulative() int {
	return p.cumulative
}

// Pending is the number of live units the course will hold once every
// planned partition is generated.
func (p *Planner) Pending() int {
	return p.pending
}
