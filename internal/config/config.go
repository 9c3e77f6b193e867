package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Course   CourseConfig   `toml:"course"`
	Data     DataConfig     `toml:"data"`
	Runner   RunnerConfig   `toml:"runner"`
	Database DatabaseConfig `toml:"database"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Logging  LoggingConfig  `toml:"logging"`
}

// CourseConfig holds the generation constants of a single course instance.
// Distances are in world units (4 units = 1m).
type CourseConfig struct {
	ID                string        `toml:"id"`   // course identifier or name; "" = random pick
	Seed              int64         `toml:"seed"` // 0 = seeded from clock
	TickRate          time.Duration `toml:"tick_rate"`
	ReclaimEvery      time.Duration `toml:"reclaim_every"`
	UnitLength        float64       `toml:"unit_length"`
	OriginOffset      float64       `toml:"origin_offset"`
	SafetyMargin      float64       `toml:"safety_margin"`
	GradeStep         float64       `toml:"grade_step"`
	MinPartLength     int           `toml:"min_part_length"` // piece-groups
	MaxPartLength     int           `toml:"max_part_length"` // piece-groups, inclusive
	BackgroundPerPart int           `toml:"background_per_part"`
	MaxRedraws        int           `toml:"max_redraws"`
	BlockPoolCap      int           `toml:"block_pool_cap"` // 0 = unbounded
	HistorySize       int           `toml:"history_size"`
}

type DataConfig struct {
	Courses string `toml:"courses"`
	Grades  string `toml:"grades"`
	Scripts string `toml:"scripts"`
}

// RunnerConfig drives the simulated player used when no client feeds positions.
type RunnerConfig struct {
	Speed float64 `toml:"speed"` // world units per second
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // "" disables the run journal
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
}

type MetricsConfig struct {
	BindAddress string `toml:"bind_address"` // "" disables /metrics
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration, used when no file is present.
func Default() *Config {
	return defaults()
}

func (c *Config) validate() error {
	cc := c.Course
	if cc.TickRate <= 0 || cc.ReclaimEvery <= 0 {
		return fmt.Errorf("course: tick_rate and reclaim_every must be positive")
	}
	if cc.UnitLength <= 0 || cc.GradeStep <= 0 {
		return fmt.Errorf("course: unit_length and grade_step must be positive")
	}
	if cc.MinPartLength < 1 || cc.MaxPartLength < cc.MinPartLength {
		return fmt.Errorf("course: invalid part length range [%d, %d]", cc.MinPartLength, cc.MaxPartLength)
	}
	if cc.BackgroundPerPart < cc.MaxPartLength {
		return fmt.Errorf("course: background_per_part %d cannot cover max_part_length %d",
			cc.BackgroundPerPart, cc.MaxPartLength)
	}
	if cc.HistorySize < 1 {
		return fmt.Errorf("course: history_size must be at least 1")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Course: CourseConfig{
			TickRate:          200 * time.Millisecond,
			ReclaimEvery:      2 * time.Second,
			UnitLength:        75,
			OriginOffset:      150,
			SafetyMargin:      200,
			GradeStep:         2000, // one tier every 500m
			MinPartLength:     3,
			MaxPartLength:     7,
			BackgroundPerPart: 7,
			MaxRedraws:        32,
			HistorySize:       5,
		},
		Data: DataConfig{
			Courses: "data/yaml/courses.yaml",
			Grades:  "data/yaml/grades.yaml",
			Scripts: "scripts",
		},
		Runner: RunnerConfig{
			Speed: 300,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
			WriteTimeout:    3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
