package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlacementsFirstRegistrationWins(t *testing.T) {
	s := NewPlacements()
	assert.True(t, s.Add(Placement{Partition: 0, Position: 7, Special: 0}))
	assert.False(t, s.Add(Placement{Partition: 1, Position: 7, Special: 2}))

	p, ok := s.At(7)
	assert.True(t, ok)
	assert.Equal(t, 0, p.Partition)
	assert.Equal(t, 1, s.Len(), "At does not consume")

	p, ok = s.Take(7)
	assert.True(t, ok)
	assert.Equal(t, 0, p.Special)
	_, ok = s.Take(7)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestPlacementsDropPartition(t *testing.T) {
	s := NewPlacements()
	s.Add(Placement{Partition: 0, Position: 3})
	s.Add(Placement{Partition: 1, Position: 30})
	s.Add(Placement{Partition: 0, Position: 12})

	assert.Equal(t, 2, s.DropPartition(0))
	assert.Equal(t, []Placement{{Partition: 1, Position: 30}}, s.List())
	assert.Equal(t, 0, s.DropPartition(0))
}
