package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GradeInfo is one difficulty tier: block-type weights (percent) and base
// block quotas, both indexed by BlockType.
type GradeInfo struct {
	Grade          string `yaml:"grade"`
	RatePlane      int    `yaml:"rate_plane"`
	RateHill       int    `yaml:"rate_hill"`
	RateGap        int    `yaml:"rate_gap"`
	RateWall       int    `yaml:"rate_wall"`
	RateCliff      int    `yaml:"rate_cliff"`
	RateEarthquake int    `yaml:"rate_earthquake"`
	RateValley     int    `yaml:"rate_valley"`
	NumPlane       int    `yaml:"num_plane"`
	NumHill        int    `yaml:"num_hill"`
	NumGap         int    `yaml:"num_gap"`
	NumWall        int    `yaml:"num_wall"`
	NumCliff       int    `yaml:"num_cliff"`
	NumEarthquake  int    `yaml:"num_earthquake"`
	NumValley      int    `yaml:"num_valley"`
}

// Rates returns the weight vector.
func (g *GradeInfo) Rates() [NumBlockTypes]int {
	return [NumBlockTypes]int{
		g.RatePlane, g.RateHill, g.RateGap, g.RateWall,
		g.RateCliff, g.RateEarthquake, g.RateValley,
	}
}

// Quotas returns the base quota vector.
func (g *GradeInfo) Quotas() [NumBlockTypes]int {
	return [NumBlockTypes]int{
		g.NumPlane, g.NumHill, g.NumGap, g.NumWall,
		g.NumCliff, g.NumEarthquake, g.NumValley,
	}
}

type gradeListFile struct {
	Grades []GradeInfo `yaml:"grades"`
}

// GradeTable holds the tiers in escalation order. Tier 0 is the entry grade,
// the last tier is terminal.
type GradeTable struct {
	tiers []*GradeInfo
}

// Tier returns the grade at index t, or nil when out of range.
func (t *GradeTable) Tier(i int) *GradeInfo {
	if i < 0 || i >= len(t.tiers) {
		return nil
	}
	return t.tiers[i]
}

// Terminal is the index of the highest tier.
func (t *GradeTable) Terminal() int {
	return len(t.tiers) - 1
}

// Count returns the number of tiers.
func (t *GradeTable) Count() int {
	return len(t.tiers)
}

// LoadGradeTable loads difficulty tiers from a YAML file.
func LoadGradeTable(path string) (*GradeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grade list %s: %w", path, err)
	}
	return ParseGradeTable(raw)
}

// ParseGradeTable builds a grade table from raw YAML.
func ParseGradeTable(raw []byte) (*GradeTable, error) {
	var f gradeListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse grade list: %w", err)
	}
	if len(f.Grades) == 0 {
		return nil, fmt.Errorf("grade list is empty")
	}
	t := &GradeTable{tiers: make([]*GradeInfo, 0, len(f.Grades))}
	for i := range f.Grades {
		g := &f.Grades[i]
		total := 0
		for _, r := range g.Rates() {
			if r < 0 {
				return nil, fmt.Errorf("grade %q: negative rate", g.Grade)
			}
			total += r
		}
		if total == 0 {
			return nil, fmt.Errorf("grade %q: all rates are zero", g.Grade)
		}
		t.tiers = append(t.tiers, g)
	}
	return t, nil
}
