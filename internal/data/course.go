package data

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// BlockType identifies an obstacle family. Negative values are reserved for
// blocks that never come out of the weighted draw.
type BlockType int

const (
	BlockStart   BlockType = -2 // course start block, never pooled
	BlockSpecial BlockType = -1 // reserved placements, num indexes Course.Specials

	BlockPlane BlockType = iota - 2
	BlockHill
	BlockGap
	BlockWall
	BlockCliff
	BlockEarthquake
	BlockValley

	NumBlockTypes = int(BlockValley) + 1
)

var blockTypeNames = [NumBlockTypes]string{
	"plane", "hill", "gap", "wall", "cliff", "earthquake", "valley",
}

func (t BlockType) String() string {
	switch {
	case t == BlockStart:
		return "start"
	case t == BlockSpecial:
		return "special"
	case t >= 0 && int(t) < NumBlockTypes:
		return blockTypeNames[t]
	}
	return fmt.Sprintf("block(%d)", int(t))
}

// Prefab is one instantiable asset reference.
type Prefab struct {
	Key       string  `yaml:"key"`
	EndHeight float64 `yaml:"end_height"`
}

// Backdrop lists the background variants available to one part theme.
// Pool optionally gives the number of pooled entries per variant; when empty
// the entries are spread round-robin over the variants.
type Backdrop struct {
	Theme    string   `yaml:"theme"`
	Variants []Prefab `yaml:"variants"`
	Pool     []int    `yaml:"pool"`
}

// BlockSet holds the prefab lists per block type, indexed by class number.
type BlockSet struct {
	Plane      []Prefab `yaml:"plane"`
	Hill       []Prefab `yaml:"hill"`
	Gap        []Prefab `yaml:"gap"`
	Wall       []Prefab `yaml:"wall"`
	Cliff      []Prefab `yaml:"cliff"`
	Earthquake []Prefab `yaml:"earthquake"`
	Valley     []Prefab `yaml:"valley"`
}

// Course is the read-only description of one course layout.
type Course struct {
	ID         int32      `yaml:"id"`
	Name       string     `yaml:"name"`
	Parts      []string   `yaml:"parts"` // part theme per partition, in order
	Backdrops  []Backdrop `yaml:"backdrops"`
	Blocks     BlockSet   `yaml:"blocks"`
	StartBlock Prefab     `yaml:"start_block"`
	Specials   []Prefab   `yaml:"special_blocks"`
	Rules      string     `yaml:"rules"` // Lua rule set name, "" = plain random draw

	blocks    [NumBlockTypes][]Prefab
	backdrops map[string]*Backdrop
}

// Backdrop returns the background set for a part theme, or nil.
func (c *Course) Backdrop(theme string) *Backdrop {
	return c.backdrops[theme]
}

// PoolSize is the number of pooled backgrounds one partition of theme gets:
// the explicit pool counts when given, otherwise perPart.
func (b *Backdrop) PoolSize(perPart int) int {
	if len(b.Pool) == 0 {
		return perPart
	}
	n := 0
	for _, k := range b.Pool {
		n += k
	}
	return n
}

// CheckPools reports a part whose background pool cannot hold a partition
// of maxGroups piece-groups.
func (c *Course) CheckPools(perPart, maxGroups int) error {
	for _, p := range c.Parts {
		b := c.backdrops[p]
		if b == nil {
			return fmt.Errorf("course %d: part %q has no backdrop", c.ID, p)
		}
		if n := b.PoolSize(perPart); n < maxGroups {
			return fmt.Errorf("course %d: theme %q pools %d backgrounds, partitions need up to %d",
				c.ID, p, n, maxGroups)
		}
	}
	return nil
}

// BlockPrefabs returns the prefabs of one block type.
func (c *Course) BlockPrefabs(t BlockType) []Prefab {
	if t < 0 || int(t) >= NumBlockTypes {
		return nil
	}
	return c.blocks[t]
}

// Prefab resolves a (type, class) pair, covering start and special blocks.
func (c *Course) Prefab(t BlockType, num int) (Prefab, bool) {
	var list []Prefab
	switch t {
	case BlockStart:
		return c.StartBlock, c.StartBlock.Key != ""
	case BlockSpecial:
		list = c.Specials
	default:
		list = c.BlockPrefabs(t)
	}
	if num < 0 || num >= len(list) {
		return Prefab{}, false
	}
	return list[num], true
}

func (c *Course) resolve() error {
	c.blocks = [NumBlockTypes][]Prefab{
		c.Blocks.Plane, c.Blocks.Hill, c.Blocks.Gap, c.Blocks.Wall,
		c.Blocks.Cliff, c.Blocks.Earthquake, c.Blocks.Valley,
	}
	if len(c.blocks[BlockPlane]) == 0 {
		return fmt.Errorf("course %d: plane blocks are required as filler", c.ID)
	}
	if len(c.Parts) == 0 {
		return fmt.Errorf("course %d: empty part sequence", c.ID)
	}
	c.backdrops = make(map[string]*Backdrop, len(c.Backdrops))
	for i := range c.Backdrops {
		b := &c.Backdrops[i]
		if len(b.Variants) == 0 {
			return fmt.Errorf("course %d: theme %q has no background variants", c.ID, b.Theme)
		}
		if len(b.Pool) != 0 && len(b.Pool) != len(b.Variants) {
			return fmt.Errorf("course %d: theme %q pool has %d counts for %d variants",
				c.ID, b.Theme, len(b.Pool), len(b.Variants))
		}
		c.backdrops[b.Theme] = b
	}
	for _, p := range c.Parts {
		if c.backdrops[p] == nil {
			return fmt.Errorf("course %d: part %q has no backdrop", c.ID, p)
		}
	}
	return nil
}

type courseListFile struct {
	Courses []Course `yaml:"courses"`
}

// CourseTable holds all course layouts indexed by ID.
type CourseTable struct {
	courses map[int32]*Course
	byName  map[string]*Course
	ids     []int32
	digest  string
}

// Get returns a course by ID, or nil if undefined.
func (t *CourseTable) Get(id int32) *Course {
	return t.courses[id]
}

// ByName looks a course up by name, ignoring case.
func (t *CourseTable) ByName(name string) *Course {
	return t.byName[foldName(name)]
}

// Random picks a course uniformly.
func (t *CourseTable) Random(rng *rand.Rand) *Course {
	if len(t.ids) == 0 {
		return nil
	}
	return t.courses[t.ids[rng.Intn(len(t.ids))]]
}

// Count returns the number of courses.
func (t *CourseTable) Count() int {
	return len(t.courses)
}

// Digest is the blake2b-256 fingerprint of the source file.
func (t *CourseTable) Digest() string {
	return t.digest
}

// Casers keep internal state, so each lookup gets its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// LoadCourseTable loads course layouts from a YAML file.
func LoadCourseTable(path string) (*CourseTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read course list %s: %w", path, err)
	}
	return ParseCourseTable(raw)
}

// ParseCourseTable builds a table from raw YAML.
func ParseCourseTable(raw []byte) (*CourseTable, error) {
	var f courseListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse course list: %w", err)
	}
	sum := blake2b.Sum256(raw)
	t := &CourseTable{
		courses: make(map[int32]*Course, len(f.Courses)),
		byName:  make(map[string]*Course, len(f.Courses)),
		digest:  hex.EncodeToString(sum[:]),
	}
	for i := range f.Courses {
		c := &f.Courses[i]
		if _, dup := t.courses[c.ID]; dup {
			return nil, fmt.Errorf("course %d defined twice", c.ID)
		}
		if err := c.resolve(); err != nil {
			return nil, err
		}
		t.courses[c.ID] = c
		t.byName[foldName(c.Name)] = c
		t.ids = append(t.ids, c.ID)
	}
	sort.Slice(t.ids, func(i, j int) bool { return t.ids[i] < t.ids[j] })
	return t, nil
}
