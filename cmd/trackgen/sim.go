package main

import (
	"sync/atomic"

	"github.com/runcourse/trackgen/internal/data"
	"github.com/runcourse/trackgen/internal/pool"
	"github.com/runcourse/trackgen/internal/track"
	"go.uber.org/zap"
)

// sceneStub stands in for the rendering side when the generator runs
// headless: instances are numbered handles and moves are logged.
type sceneStub struct {
	log     *zap.Logger
	next    atomic.Uint64
	heights map[string]float64
	moves   atomic.Int64
}

func newSceneStub(c *data.Course, log *zap.Logger) *sceneStub {
	s := &sceneStub{log: log, heights: make(map[string]float64)}
	add := func(ps []data.Prefab) {
		for _, p := range ps {
			s.heights[p.Key] = p.EndHeight
		}
	}
	for _, b := range c.Backdrops {
		add(b.Variants)
	}
	for t := data.BlockPlane; int(t) < data.NumBlockTypes; t++ {
		add(c.BlockPrefabs(t))
	}
	add(c.Specials)
	add([]data.Prefab{c.StartBlock})
	return s
}

func (s *sceneStub) CreateInstance(prefab string, pos pool.Vec3, authoritative bool) (track.Instance, error) {
	h := pool.Handle(s.next.Add(1))
	s.log.Debug("instance created",
		zap.String("prefab", prefab),
		zap.Uint64("handle", uint64(h)),
		zap.Float64("z", pos.Z),
		zap.Bool("authoritative", authoritative))
	return track.Instance{Handle: h, EndHeight: s.heights[prefab]}, nil
}

func (s *sceneStub) Move(h pool.Handle, pos pool.Vec3, active bool) {
	s.moves.Add(1)
	s.log.Debug("instance moved",
		zap.Uint64("handle", uint64(h)),
		zap.Float64("z", pos.Z),
		zap.Bool("active", active))
}

func (s *sceneStub) Instances() int { return int(s.next.Load()) }
