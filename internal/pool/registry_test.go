package pool

import (
	"testing"

	"github.com/runcourse/trackgen/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type move struct {
	pos    Vec3
	active bool
}

type recordingMover struct {
	last map[Handle]move
}

func (m *recordingMover) Move(h Handle, pos Vec3, active bool) {
	if m.last == nil {
		m.last = make(map[Handle]move)
	}
	m.last[h] = move{pos, active}
}

func TestBackgroundLifecycle(t *testing.T) {
	mv := &recordingMover{}
	r := NewRegistry(mv, 0, zaptest.NewLogger(t))
	for i, v := range []int{0, 0, 1} {
		_, err := r.AddBackground(0, v, "bg", Handle(i+1))
		require.NoError(t, err)
	}
	r.Seal()
	_, err := r.AddBackground(0, 0, "late", 9)
	assert.Error(t, err, "sealed pools never grow")
	assert.Equal(t, move{HoldingPosition, false}, mv.last[1])

	bg, err := r.AcquireBackground(0, 0)
	require.NoError(t, err)
	assert.True(t, bg.Queued)
	assert.Equal(t, 1, r.FreeBackgrounds(0, 0))

	pos := Vec3{Z: 600}
	require.NoError(t, r.PlaceBackground(bg.ID, 6, pos))
	assert.True(t, bg.InUse)
	assert.False(t, bg.Queued)
	assert.Equal(t, move{pos, true}, mv.last[bg.Handle])
	assert.Equal(t, 1, r.InUseBackgrounds(0))
	assert.Error(t, r.PlaceBackground(bg.ID, 6, pos), "already in use")

	queued, err := r.AcquireBackground(0, 1)
	require.NoError(t, err)
	_, err = r.AcquireBackground(0, 1)
	assert.ErrorIs(t, err, ErrExhausted)
	_, err = r.AcquireBackground(3, 0)
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, r.Verify())
	assert.Equal(t, Stats{Backgrounds: 3, BackgroundsInUse: 1, BackgroundsQueued: 1}, r.Stats())

	// releases both the placed and the queued entry
	assert.Equal(t, 2, r.ReleaseBackgrounds(0))
	assert.False(t, queued.Queued)
	assert.Equal(t, move{HoldingPosition, false}, mv.last[bg.Handle])
	assert.Equal(t, 2, r.FreeBackgrounds(0, 0))
	assert.Equal(t, 1, r.FreeBackgrounds(0, 1))
	assert.Zero(t, r.ReleaseBackgrounds(0))
	require.NoError(t, r.Verify())
}

func TestBlockReuseByTypeAndClass(t *testing.T) {
	mv := &recordingMover{}
	r := NewRegistry(mv, 0, zaptest.NewLogger(t))

	_, err := r.AcquireBlock(data.BlockHill, 0, 0, 0, Vec3{})
	require.ErrorIs(t, err, ErrExhausted)

	a, err := r.RegisterBlock(BlockDesc{Type: data.BlockHill, Num: 0, Partition: 0, Unit: 0}, 10)
	require.NoError(t, err)
	b, err := r.RegisterBlock(BlockDesc{Type: data.BlockHill, Num: 0, Partition: 0, Unit: 1}, 11)
	require.NoError(t, err)
	_, err = r.RegisterBlock(BlockDesc{Type: data.BlockGap, Num: 0, Partition: 1, Unit: 24}, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, r.InUseBlocks(0))

	assert.Equal(t, 2, r.ReleaseBlocks(0))
	assert.Zero(t, r.ReleaseBlocks(0))
	assert.False(t, r.ReleaseBlock(a.ID))
	assert.Equal(t, move{HoldingPosition, false}, mv.last[a.Handle])
	assert.Equal(t, 1, r.InUseBlocks(1))

	// oldest released first
	got, err := r.AcquireBlock(data.BlockHill, 0, 2, 40, Vec3{Z: 3150})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, 2, got.Partition)
	assert.Equal(t, 40, got.Desc.Unit)
	assert.Equal(t, move{Vec3{Z: 3150}, true}, mv.last[a.Handle])

	got, err = r.AcquireBlock(data.BlockHill, 0, 2, 41, Vec3{})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = r.AcquireBlock(data.BlockHill, 1, 2, 42, Vec3{})
	assert.ErrorIs(t, err, ErrExhausted, "class is part of the key")

	assert.Equal(t, Stats{Blocks: 3, BlocksInUse: 3}, r.Stats())
	require.NoError(t, r.Verify())
}

func TestBlockPoolCap(t *testing.T) {
	r := NewRegistry(nil, 1, zaptest.NewLogger(t))
	assert.True(t, r.CanRegister())
	_, err := r.RegisterBlock(BlockDesc{Type: data.BlockPlane}, 1)
	require.NoError(t, err)
	assert.False(t, r.CanRegister())
	_, err = r.RegisterBlock(BlockDesc{Type: data.BlockPlane}, 2)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestVerifyCatchesCorruption(t *testing.T) {
	r := NewRegistry(nil, 0, zaptest.NewLogger(t))
	bg, err := r.AddBackground(0, 0, "bg", 1)
	require.NoError(t, err)
	blk, err := r.RegisterBlock(BlockDesc{Type: data.BlockPlane, Partition: 2}, 2)
	require.NoError(t, err)
	require.NoError(t, r.Verify())

	bg.InUse, bg.Queued = true, true
	assert.Error(t, r.Verify())
	bg.InUse, bg.Queued = false, false

	blk.Partition = 3
	assert.Error(t, r.Verify(), "indexed under the wrong partition")
	blk.Partition = 2

	blk.InUse = false
	assert.Error(t, r.Verify(), "owner index holds an idle block")
}
