package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM holding course placement rules.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every rule script under
// scriptsDir/rules. A missing directory yields an engine without rules.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("RULES", vm.NewTable())

	e := &Engine{vm: vm, log: log}

	if err := e.loadDir(filepath.Join(scriptsDir, "rules")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load rule scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// GroupContext describes one piece-group about to be queued.
type GroupContext struct {
	Course    string
	Part      string // partition theme
	Partition int
	Group     int // index within the partition
	Groups    int // piece-groups in the partition
	Position  int // absolute unit position of the group
	Drawn     int // randomly drawn variant
	Variants  int // variants available to the theme
}

// Special reserves a block at Position+Offset.
type Special struct {
	Block  int // index into the course's special blocks
	Offset int
}

// GroupPlan is the rule outcome for one piece-group.
type GroupPlan struct {
	Variant  int
	Specials []Special
}

// HasRules reports whether a rule set with this name was loaded.
func (e *Engine) HasRules(name string) bool {
	return e.rulesFn(name) != lua.LNil
}

func (e *Engine) rulesFn(name string) lua.LValue {
	rules, ok := e.vm.GetGlobal("RULES").(*lua.LTable)
	if !ok || name == "" {
		return lua.LNil
	}
	fn := rules.RawGetString(name)
	if fn.Type() != lua.LTFunction {
		return lua.LNil
	}
	return fn
}

// PlaceGroup runs rule set name against one group. Script errors fall back
// to the drawn variant without reservations.
func (e *Engine) PlaceGroup(name string, g GroupContext) GroupPlan {
	plan := GroupPlan{Variant: g.Drawn}
	fn := e.rulesFn(name)
	if fn == lua.LNil {
		return plan
	}

	t := e.vm.NewTable()
	t.RawSetString("course", lua.LString(g.Course))
	t.RawSetString("part", lua.LString(g.Part))
	t.RawSetString("partition", lua.LNumber(g.Partition))
	t.RawSetString("group", lua.LNumber(g.Group))
	t.RawSetString("groups", lua.LNumber(g.Groups))
	t.RawSetString("position", lua.LNumber(g.Position))
	t.RawSetString("drawn", lua.LNumber(g.Drawn))
	t.RawSetString("variants", lua.LNumber(g.Variants))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua rules failed", zap.String("rules", name), zap.Error(err))
		return plan
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := ret.(*lua.LTable)
	if !ok {
		return plan
	}
	if v, ok := rt.RawGetString("variant").(lua.LNumber); ok {
		plan.Variant = int(v)
	}
	if specials, ok := rt.RawGetString("specials").(*lua.LTable); ok {
		specials.ForEach(func(_, v lua.LValue) {
			st, ok := v.(*lua.LTable)
			if !ok {
				return
			}
			plan.Specials = append(plan.Specials, Special{
				Block:  lInt(st, "block"),
				Offset: lInt(st, "offset"),
			})
		})
	}
	return plan
}

func lInt(t *lua.LTable, key string) int {
	v, _ := t.RawGetString(key).(lua.LNumber)
	return int(v)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
