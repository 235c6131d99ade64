package gates

import (
	"github.com/taskgov/governor/contracts"
)

// DefaultSafetyFloorGB is the memory headroom that must survive admission.
const DefaultSafetyFloorGB = 1.5

// memoryGate implements contracts.MemoryGate with a fixed safety floor.
type memoryGate struct {
	floorGB float64
}

// NewMemoryGate creates a MemoryGate. A non-positive floor falls back to the
// default.
func NewMemoryGate(floorGB float64) contracts.MemoryGate {
	if floorGB <= 0 {
		floorGB = DefaultSafetyFloorGB
	}
	return &memoryGate{floorGB: floorGB}
}

// Admit fails when available minus the estimate would dip below the safety
// floor. The returned shortfall is how many GB the task is over; callers use
// it to decide to retry later rather than fail permanently.
func (g *memoryGate) Admit(estimateGB, availableGB float64) (bool, float64) {
	headroom := availableGB - estimateGB
	if headroom < g.floorGB {
		return false, g.floorGB - headroom
	}
	return true, 0
}
