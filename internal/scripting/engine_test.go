package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTokyoEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine("../../scripts", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	require.True(t, e.HasRules("tokyo"))
	return e
}

func TestTokyoTunnelVariants(t *testing.T) {
	e := newTokyoEngine(t)
	base := GroupContext{Course: "Tokyo", Part: "tunnel", Groups: 4, Variants: 3, Drawn: 2}

	first := base
	first.Position = 24
	plan := e.PlaceGroup("tokyo", first)
	assert.Equal(t, 0, plan.Variant)
	assert.Equal(t, []Special{{Block: 0, Offset: 0}}, plan.Specials)

	mid := base
	mid.Group = 1
	plan = e.PlaceGroup("tokyo", mid)
	assert.Equal(t, 1, plan.Variant)
	assert.Empty(t, plan.Specials)

	last := base
	last.Group = 3
	last.Drawn = 0
	plan = e.PlaceGroup("tokyo", last)
	assert.Equal(t, 2, plan.Variant)
	assert.Equal(t, []Special{{Block: 0, Offset: 5}, {Block: 0, Offset: 6}}, plan.Specials)
}

func TestTokyoCitySpecials(t *testing.T) {
	e := newTokyoEngine(t)

	plan := e.PlaceGroup("tokyo", GroupContext{Part: "city", Group: 0, Groups: 3, Drawn: 0, Variants: 3})
	assert.Equal(t, 0, plan.Variant)
	assert.Equal(t, []Special{{Block: 0, Offset: 3}}, plan.Specials)

	plan = e.PlaceGroup("tokyo", GroupContext{Part: "city", Group: 2, Groups: 3, Drawn: 1, Variants: 3})
	assert.Equal(t, 1, plan.Variant)
	assert.Equal(t, []Special{{Block: 0, Offset: 4}, {Block: 0, Offset: 5}}, plan.Specials)

	plan = e.PlaceGroup("tokyo", GroupContext{Part: "harbor", Group: 0, Groups: 3, Drawn: 1, Variants: 2})
	assert.Equal(t, GroupPlan{Variant: 1}, plan)
}

func TestPlaceGroupFallsBackOnScriptError(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules")
	require.NoError(t, os.MkdirAll(rules, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rules, "broken.lua"),
		[]byte(`RULES["broken"] = function(ctx) error("boom") end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rules, "nothing.lua"),
		[]byte(`RULES["nothing"] = function(ctx) return 7 end`), 0o644))
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()
	require.True(t, e.HasRules("broken"))

	g := GroupContext{Part: "city", Drawn: 1, Variants: 3}
	assert.Equal(t, GroupPlan{Variant: 1}, e.PlaceGroup("broken", g))
	assert.Equal(t, GroupPlan{Variant: 1}, e.PlaceGroup("nothing", g))
	assert.Equal(t, GroupPlan{Variant: 1}, e.PlaceGroup("missing", g))
	assert.False(t, e.HasRules("missing"))
	assert.False(t, e.HasRules(""))
}

func TestNewEngineWithoutRulesDir(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()
	assert.False(t, e.HasRules("tokyo"))
}
