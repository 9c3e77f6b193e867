package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversAfterSwapInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e RunCompleted) { got = append(got, "run") })
	Subscribe(b, func(e PartitionReclaimed) { got = append(got, "reclaim") })

	Emit(b, PartitionReclaimed{Partition: 1})
	Emit(b, RunCompleted{Target: 90})
	Emit(b, PartitionReclaimed{Partition: 2})
	assert.Equal(t, 3, b.Pending())

	b.DispatchAll()
	assert.Empty(t, got, "nothing before the swap")

	b.SwapBuffers()
	assert.Zero(t, b.Pending())
	b.DispatchAll()
	assert.Equal(t, []string{"reclaim", "run", "reclaim"}, got)
}

func TestBusHandlerEmitsWaitForNextSwap(t *testing.T) {
	b := NewBus()
	var closed int
	Subscribe(b, func(e CourseFailed) { Emit(b, CourseClosed{RunID: e.RunID}) })
	Subscribe(b, func(CourseClosed) { closed++ })

	Emit(b, CourseFailed{RunID: "r"})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Zero(t, closed)
	assert.Equal(t, 1, b.Pending())

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 1, closed)
}

func TestBusIgnoresUnsubscribedTypes(t *testing.T) {
	b := NewBus()
	Emit(b, GradeEscalated{Tier: 1})
	b.SwapBuffers()
	assert.NotPanics(t, b.DispatchAll)
}
