package track

import (
	"math/rand"

	"github.com/runcourse/trackgen/internal/data"
)

// Grade tracks the difficulty tier and the current partition's remaining
// block quotas. The tier only ever moves up, one step per check.
type Grade struct {
	table      *data.GradeTable
	unitLength float64
	step       float64 // distance per tier
	tier       int
	rates      [data.NumBlockTypes]int
	quota      [data.NumBlockTypes]int
}

func NewGrade(table *data.GradeTable, unitLength, step float64) *Grade {
	g := &Grade{table: table, unitLength: unitLength, step: step}
	g.load(0)
	return g
}

func (g *Grade) load(tier int) {
	info := g.table.Tier(tier)
	g.tier = tier
	g.rates = info.Rates()
	g.quota = info.Quotas()
}

func (g *Grade) Tier() int { return g.tier }

func (g *Grade) Name() string { return g.table.Tier(g.tier).Grade }

func (g *Grade) Terminal() bool { return g.tier >= g.table.Terminal() }

func (g *Grade) Rates() [data.NumBlockTypes]int { return g.rates }

func (g *Grade) Quota() [data.NumBlockTypes]int { return g.quota }

// Check escalates one tier once the generated distance passes the next tier
// boundary. groups is the current partition's group count, used to re-derive
// quotas. Reports whether the tier changed.
func (g *Grade) Check(created, groups int) bool {
	byDistance := int(float64(created) * g.unitLength / g.step)
	if byDistance <= g.tier || g.Terminal() {
		return false
	}
	g.load(g.tier + 1)
	g.Recompute(groups)
	return true
}

// Recompute sets each quota to rate% of the partition's units plus one
// spare group, rounded down. Quotas never go below zero.
func (g *Grade) Recompute(groups int) {
	units := (groups + 1) * GroupSize
	for i, r := range g.rates {
		q := r * units / 100
		if q < 0 {
			q = 0
		}
		g.quota[i] = q
	}
}

// Draw picks a block type by rate among types with quota left that the
// course can build. ok is false when nothing is eligible.
func (g *Grade) Draw(rng *rand.Rand, buildable func(data.BlockType) bool) (data.BlockType, bool) {
	var weights [data.NumBlockTypes]int
	total := 0
	for i, r := range g.rates {
		t := data.BlockType(i)
		if r <= 0 || g.quota[i] <= 0 || !buildable(t) {
			continue
		}
		weights[i] = r
		total += r
	}
	if total == 0 {
		return 0, false
	}
	n := rng.Intn(total)
	for i, w := range weights {
		n -= w
		if n < 0 {
			return data.BlockType(i), true
		}
	}
	return 0, false
}

// Consume takes one unit of quota from t.
func (g *Grade) Consume(t data.BlockType) {
	if t < 0 || int(t) >= data.NumBlockTypes {
		return
	}
	if g.quota[t] > 0 {
		g.quota[t]--
	}
}
