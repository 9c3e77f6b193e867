package event

import "github.com/runcourse/trackgen/internal/pool"

// Course lifecycle and generation events.

type CourseStarted struct {
	RunID      string
	CourseID   int32
	Course     string
	Partitions int
	Planned    int // units in the initial run
	Digest     string
}

// GeneratedPartition lists the blocks a finished run laid in one partition,
// in unit order. Spawners of course objects consume it.
type GeneratedPartition struct {
	ID     int
	Part   string
	Blocks []pool.BlockDesc
}

type RunCompleted struct {
	RunID      string
	Initial    bool
	Target     int
	Partitions []GeneratedPartition
}

type PartitionReclaimed struct {
	RunID       string
	Partition   int
	Blocks      int
	Backgrounds int
	Placements  int
	Reclaimed   int // cumulative after this reclamation
	NewStart    int
	NewLength   int
}

type GradeEscalated struct {
	RunID   string
	Tier    int
	Grade   string
	Created int
}

type PlacementConsumed struct {
	Partition int
	Unit      int
	Special   int
}

type CourseFailed struct {
	RunID string
	Err   error
}

type CourseClosed struct {
	RunID     string
	Created   int
	Reclaimed int
}
