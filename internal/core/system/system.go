package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput    Phase = iota // 0: sample player position
	PhaseGenerate              // 1: advance the frontier
	PhaseReclaim               // 2: return passed partitions to the pools
	PhaseDispatch              // 3: deliver this tick's events
	PhaseOutput                // 4: metrics, status
)

// System is the interface every course system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
