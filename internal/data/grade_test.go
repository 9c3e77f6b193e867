package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadShippedGrades(t *testing.T) {
	table, err := LoadGradeTable("../../data/yaml/grades.yaml")
	require.NoError(t, err)
	assert.Equal(t, 5, table.Count())
	assert.Equal(t, 4, table.Terminal())
	assert.Equal(t, "very_easy", table.Tier(0).Grade)
	assert.Nil(t, table.Tier(5))

	r := table.Tier(0).Rates()
	assert.Equal(t, 70, r[BlockPlane])
	assert.Equal(t, 30, table.Tier(0).Quotas()[BlockPlane])
}

func TestParseGradeTableValidates(t *testing.T) {
	_, err := ParseGradeTable([]byte("grades: []"))
	assert.Error(t, err)

	_, err = ParseGradeTable([]byte("grades: [{ grade: x, rate_plane: -1, rate_hill: 5 }]"))
	assert.Error(t, err)

	_, err = ParseGradeTable([]byte("grades: [{ grade: x }]"))
	assert.Error(t, err)
}
