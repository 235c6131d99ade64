package contracts

// TaskState represents the state of a task in the scheduler's queue.
type TaskState int

const (
	TaskQueued TaskState = iota
	TaskValidating
	TaskAdmitted
	TaskInProgress
	TaskCompleted
	TaskDeferred
	TaskFailed
	TaskBlocked
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskValidating:
		return "validating"
	case TaskAdmitted:
		return "admitted"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskDeferred:
		return "deferred"
	case TaskFailed:
		return "failed"
	case TaskBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a task's lifecycle.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskBlocked
}

// Priority orders tasks at dequeue time. Higher values dequeue first.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ThermalState is the ordered classification of a temperature reading.
type ThermalState int

const (
	ThermalNormal ThermalState = iota
	ThermalWarm
	ThermalHot
	ThermalCritical
	ThermalEmergency
)

func (s ThermalState) String() string {
	switch s {
	case ThermalNormal:
		return "normal"
	case ThermalWarm:
		return "warm"
	case ThermalHot:
		return "hot"
	case ThermalCritical:
		return "critical"
	case ThermalEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ThermalRisk classifies how much heat a task is expected to generate.
type ThermalRisk int

const (
	RiskLow ThermalRisk = iota
	RiskMedium
	RiskHigh
)

func (r ThermalRisk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Tier is the degradation level derived from remaining budget percentage.
// Lower tiers carry strictly less generous execution parameters.
type Tier int

const (
	TierEmergency Tier = iota
	TierCritical
	TierConstrained
	TierModerate
	TierFull
)

func (t Tier) String() string {
	switch t {
	case TierEmergency:
		return "emergency"
	case TierCritical:
		return "critical"
	case TierConstrained:
		return "constrained"
	case TierModerate:
		return "moderate"
	case TierFull:
		return "full"
	default:
		return "unknown"
	}
}

// StopReason explains why a session loop terminated.
type StopReason string

const (
	StopQueueDrained     StopReason = "queue_drained"
	StopQueueStalled     StopReason = "queue_stalled"
	StopThermalEmergency StopReason = "thermal_emergency"
	StopBudgetCheckpoint StopReason = "budget_checkpoint"
	StopBudgetExhausted  StopReason = "budget_exhausted"
	StopContextCancelled StopReason = "context_cancelled"
)
