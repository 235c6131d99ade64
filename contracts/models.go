package contracts

import "time"

// TaskDefinition is the immutable input to the scheduler. One JSON object per
// task; external callers construct these per subsystem.
type TaskDefinition struct {
	ID       TaskID    `json:"id"`
	Name     string    `json:"name"`
	Domain   DomainTag `json:"domain"`
	Priority Priority  `json:"priority"`

	Estimate ResourceEstimate `json:"estimate"`
	Contract TaskContract     `json:"contract"`

	// Chunks, when non-empty, decomposes the task into an ordered list of
	// checkpointable unit identifiers.
	Chunks []ChunkID `json:"chunks,omitempty"`

	// Viability, when set on a chunked task, requires a PASS verdict from the
	// statistical validator before the task may enter in_progress.
	Viability *ViabilitySpec `json:"viability,omitempty"`
}

// Chunked reports whether the task carries chunking metadata.
func (d *TaskDefinition) Chunked() bool { return d != nil && len(d.Chunks) > 0 }

// ResourceEstimate is the caller's prediction of what the task will consume.
type ResourceEstimate struct {
	Units    Units         `json:"units"`
	MemoryGB float64       `json:"memory_gb"`
	Duration time.Duration `json:"duration"`
	Risk     ThermalRisk   `json:"risk"`
}

// TaskContract captures what a completed task must have produced.
type TaskContract struct {
	ExpectedOutputs []string           `json:"expected_outputs,omitempty"`
	SuccessCriteria map[string]float64 `json:"success_criteria,omitempty"`
	DependsOn       []TaskID           `json:"depends_on,omitempty"`
}

// ViabilitySpec configures the pre-execution sampling gate for one task.
// Zero thresholds fall back to the validator's construction defaults.
type ViabilitySpec struct {
	// CollectionSize is the number of addressable items in the task's input.
	CollectionSize int `json:"collection_size"`

	FormatThreshold  float64 `json:"format_threshold,omitempty"`
	ProcessThreshold float64 `json:"process_threshold,omitempty"`
	ShapeThreshold   float64 `json:"shape_threshold,omitempty"`
	QualityThreshold float64 `json:"quality_threshold,omitempty"`
}

// TrialOutcome is the result of a cheap trial pass over one sampled item.
type TrialOutcome struct {
	FormatValid bool
	Processed   bool
	OutputShape bool
}

// TrialFunc runs the trial pass for the item at the given collection index.
type TrialFunc func(index int) (TrialOutcome, error)

// VerdictReport is the validator's aggregate over the stratified sample.
// A FAIL always names the first metric that missed its threshold.
type VerdictReport struct {
	Pass         bool    `json:"pass"`
	FailedMetric string  `json:"failed_metric,omitempty"`
	FormatRate   float64 `json:"format_rate"`
	ProcessRate  float64 `json:"process_rate"`
	ShapeRate    float64 `json:"shape_rate"`
	QualityScore float64 `json:"quality_score"`
	SampleSize   int     `json:"sample_size"`
	Indices      []int   `json:"indices"`
}

// AdaptationParams are the execution parameters a tier grants.
type AdaptationParams struct {
	SampleCount int `json:"sample_count"`
	ChunkSize   int `json:"chunk_size"`
	MaxRetries  int `json:"max_retries"`
}

// ExecResult is the executor's report for an unchunked task.
type ExecResult struct {
	Outputs map[string]string

	// ActualUnits is the measured consumption. Zero means the executor could
	// not report usage and the scheduler falls back to the estimate.
	ActualUnits Units
}

// ChunkResult is the executor's report for one chunk of a chunked task.
type ChunkResult struct {
	Payload     []byte
	ActualUnits Units
}

// LedgerEntry is one append-only consumption record.
type LedgerEntry struct {
	At    time.Time `json:"at"`
	Units Units     `json:"units"`
	Task  TaskID    `json:"task"`
}

// LedgerSnapshot is a point-in-time view of the consumption ledger.
type LedgerSnapshot struct {
	Budget     Units         `json:"budget"`
	Remaining  Units         `json:"remaining"`
	WindowUsed Units         `json:"window_used"`
	BurnRate   float64       `json:"burn_rate_units_per_hour"`
	Exhaustion time.Duration `json:"projected_exhaustion,omitempty"`
	Unbounded  bool          `json:"unbounded"`
}

// TaskDisposition is one task's final line in the session report.
// Every enqueued task appears exactly once regardless of outcome.
type TaskDisposition struct {
	ID       TaskID    `json:"id"`
	Name     string    `json:"name"`
	Domain   DomainTag `json:"domain"`
	State    TaskState `json:"state"`
	Reason   string    `json:"reason,omitempty"`
	Attempts int       `json:"attempts"`
	Units    Units     `json:"units"`
}

// SessionReport is the structured summary emitted at session end.
type SessionReport struct {
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	StopReason StopReason        `json:"stop_reason"`
	FinalTier  Tier              `json:"final_tier"`
	Completed  int               `json:"completed"`
	Deferred   int               `json:"deferred"`
	Failed     int               `json:"failed"`
	Blocked    int               `json:"blocked"`
	Tasks      []TaskDisposition `json:"tasks"`
	Ledger     LedgerSnapshot    `json:"ledger"`
}

// SessionCheckpoint is the resumable snapshot written when a session stops
// early (thermal emergency or budget floor).
type SessionCheckpoint struct {
	SavedAt    time.Time  `json:"saved_at"`
	StopReason StopReason `json:"stop_reason"`

	// Pending holds the IDs of tasks that had not reached a terminal state,
	// in queue order. The in-flight task (if any) is first.
	Pending []TaskID `json:"pending"`
}

// ChunkManifest is the durable per-task record of completed chunks.
// Rewritten atomically on every chunk completion.
type ChunkManifest struct {
	Task      TaskID    `json:"task"`
	Completed []ChunkID `json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`
}
