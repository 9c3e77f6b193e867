package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory[int](3)
	_, ok := h.Last()
	assert.False(t, ok)

	for i := 1; i <= 5; i++ {
		h.Push(i)
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []int{3, 4, 5}, h.Items())
	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestHistoryMinimumCapacity(t *testing.T) {
	h := NewHistory[string](0)
	h.Push("a")
	h.Push("b")
	assert.Equal(t, []string{"b"}, h.Items())
}
