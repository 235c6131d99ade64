package contracts

import (
	"context"
	"time"
)

// =============================================================================
// Admission Gates
// =============================================================================

// ThermalGate converts a temperature reading into an admission verdict.
// The gate holds no state between calls.
type ThermalGate interface {
	// Admit reports whether a task with the given thermal risk class may run
	// at the given temperature, and the classified thermal state.
	Admit(tempC float64, risk ThermalRisk) (bool, ThermalState)

	// Classify maps a temperature to its thermal state without a verdict.
	Classify(tempC float64) ThermalState
}

// MemoryGate checks a task's estimated footprint against available memory.
type MemoryGate interface {
	// Admit reports whether the estimate fits above the safety floor.
	// On denial the returned shortfall (GB) tells callers how far off the
	// task was, so they can defer rather than permanently fail.
	Admit(estimateGB, availableGB float64) (bool, float64)
}

// =============================================================================
// Budget
// =============================================================================

// Ledger is the rolling-window consumption counter. It is the single source
// of truth for remaining budget; no other component computes it.
type Ledger interface {
	// Record appends a consumption entry and prunes entries older than the
	// rolling window.
	Record(units Units, at time.Time, task TaskID)

	// Remaining returns budget*safetyMargin - windowSum - reservedPool.
	Remaining() Units

	// RemainingPercent returns Remaining as a percentage of the usable budget.
	RemainingPercent() float64

	// BurnRate returns units consumed per hour of elapsed session time.
	BurnRate() float64

	// ProjectedExhaustion returns how long the remaining budget lasts at the
	// current burn rate. unbounded is true when the burn rate is zero.
	ProjectedExhaustion() (d time.Duration, unbounded bool)

	// Snapshot returns a point-in-time view for reporting.
	Snapshot() LedgerSnapshot
}

// AdaptationPolicy maps remaining budget to degraded execution parameters.
type AdaptationPolicy interface {
	// TierFor returns the tier for a remaining-budget percentage.
	TierFor(remainingPercent float64) Tier

	// Params returns the fixed parameter set for a tier.
	Params(tier Tier) AdaptationParams
}

// =============================================================================
// Viability
// =============================================================================

// ViabilityValidator samples a task's input before full resources are
// committed to it.
type ViabilityValidator interface {
	// Validate draws a stratified sample of the collection (beginning, middle,
	// end bands plus random picks), runs the trial on each sampled item, and
	// aggregates the verdict. Collections smaller than four items are sampled
	// in full.
	Validate(ctx context.Context, spec ViabilitySpec, trial TrialFunc) (*VerdictReport, error)
}

// =============================================================================
// Checkpointing
// =============================================================================

// MergeFunc combines ordered chunk payloads into one result during Assemble.
type MergeFunc func(ordered [][]byte) ([]byte, error)

// CheckpointManager persists completed chunks and the per-task manifest.
// All writes are atomic (temp write + durable rename): a crash leaves either
// the old or the new state fully intact.
type CheckpointManager interface {
	// SaveChunk durably writes the chunk payload, then rewrites the manifest
	// to include chunkID.
	SaveChunk(task TaskID, chunk ChunkID, payload []byte) error

	// CompletedChunks reads the manifest. A fresh task (no manifest) yields
	// an empty set, not an error.
	CompletedChunks(task TaskID) (map[ChunkID]struct{}, error)

	// Resume returns fullChunkList minus completed chunks, preserving order.
	Resume(task TaskID, full []ChunkID) ([]ChunkID, error)

	// Assemble reads each listed chunk in order and merges them. A missing
	// chunk is a named error, never a silent skip.
	Assemble(task TaskID, ordered []ChunkID, merge MergeFunc) ([]byte, error)

	// SaveSession persists a resumable session checkpoint.
	SaveSession(cp *SessionCheckpoint) error

	// LoadSession returns the last session checkpoint, or (nil, nil) when
	// none exists.
	LoadSession() (*SessionCheckpoint, error)
}

// =============================================================================
// External collaborators
// =============================================================================

// Executor performs the actual work. It receives the adapted execution
// parameters from the current tier; the governor owns only admission,
// deferral, adaptation, and checkpointing around it.
type Executor interface {
	// Execute runs an unchunked task in one step.
	Execute(ctx context.Context, task *TaskDefinition, params AdaptationParams) (*ExecResult, error)

	// ExecuteChunk runs a single chunk of a chunked task.
	ExecuteChunk(ctx context.Context, task *TaskDefinition, chunk ChunkID, params AdaptationParams) (*ChunkResult, error)

	// Trial runs the cheap viability pass for one input item.
	Trial(ctx context.Context, task *TaskDefinition, index int) (TrialOutcome, error)
}

// ThermalSource supplies the current CPU temperature in °C on demand.
type ThermalSource interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// MemorySource supplies currently-available memory in GB on demand.
type MemorySource interface {
	AvailableGB(ctx context.Context) (float64, error)
}

// PriorityBoost is an optional escalation signal applied at dequeue time
// (e.g., business-hours overrides). It never preempts in-progress work.
type PriorityBoost func(task *TaskDefinition, now time.Time) Priority

// SessionArchive records finished session reports for operator inspection.
type SessionArchive interface {
	AppendReport(ctx context.Context, report *SessionReport) error
	Close() error
}
