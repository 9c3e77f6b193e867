package track

import "sort"

// Placements indexes reserved blocks by absolute unit. A unit holds at most
// one reservation; the first registration wins.
type Placements struct {
	byUnit map[int]Placement
}

func NewPlacements() *Placements {
	return &Placements{byUnit: make(map[int]Placement, 16)}
}

// Add reserves p.Position. Returns false if the unit was already reserved.
func (s *Placements) Add(p Placement) bool {
	if _, taken := s.byUnit[p.Position]; taken {
		return false
	}
	s.byUnit[p.Position] = p
	return true
}

// At reports the reservation at unit without consuming it.
func (s *Placements) At(unit int) (Placement, bool) {
	p, ok := s.byUnit[unit]
	return p, ok
}

// Take consumes the reservation at unit.
func (s *Placements) Take(unit int) (Placement, bool) {
	p, ok := s.byUnit[unit]
	if ok {
		delete(s.byUnit, unit)
	}
	return p, ok
}

// DropPartition removes every reservation owned by a partition.
func (s *Placements) DropPartition(partition int) int {
	n := 0
	for unit, p := range s.byUnit {
		if p.Partition == partition {
			delete(s.byUnit, unit)
			n++
		}
	}
	return n
}

// Len is the number of outstanding reservations.
func (s *Placements) Len() int {
	return len(s.byUnit)
}

// List returns outstanding reservations by unit.
func (s *Placements) List() []Placement {
	out := make([]Placement, 0, len(s.byUnit))
	for _, p := range s.byUnit {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
