package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackgen.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/trackgen.toml")
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.Course.TickRate)
	assert.Equal(t, 2*time.Second, cfg.Course.ReclaimEvery)
	assert.Equal(t, 75.0, cfg.Course.UnitLength)
	assert.Equal(t, 7, cfg.Course.BackgroundPerPart)
	assert.Equal(t, "data/yaml/courses.yaml", cfg.Data.Courses)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[course]
id = "Seoul"
seed = 99
unit_length = 18.75
`))
	require.NoError(t, err)
	assert.Equal(t, "Seoul", cfg.Course.ID)
	assert.Equal(t, int64(99), cfg.Course.Seed)
	assert.Equal(t, 18.75, cfg.Course.UnitLength)
	assert.Equal(t, Default().Course.SafetyMargin, cfg.Course.SafetyMargin)
	assert.Equal(t, 5, cfg.Course.HistorySize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"length range":    "[course]\nmin_part_length = 5\nmax_part_length = 4\n",
		"pool too small":  "[course]\nbackground_per_part = 6\n",
		"zero unit":       "[course]\nunit_length = 0.0\n",
		"negative tick":   "[course]\ntick_rate = \"-1s\"\n",
		"history":         "[course]\nhistory_size = 0\n",
		"not toml at all": "[course\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
