package contracts

import "errors"

// Sentinel errors for the governor. Callers match with errors.Is.
var (
	// Gate errors (recoverable: cause deferral, not failure)
	ErrThermalRejected = errors.New("thermal gate rejected task")
	ErrMemoryRejected  = errors.New("memory gate rejected task")
	ErrTierRejected    = errors.New("adaptation tier below task priority floor")

	// Viability errors (recoverable: task returns to queue with diagnostic)
	ErrViabilityFailed = errors.New("viability sample below threshold")

	// Execution errors (retried up to the tier's max retries, then failed)
	ErrExecutionFailed = errors.New("executor raised during task execution")

	// Checkpoint errors (corruption is fatal for the owning task only)
	ErrCheckpointCorrupt = errors.New("checkpoint manifest or chunk unreadable")
	ErrChunkMissing      = errors.New("listed chunk missing from checkpoint storage")
	ErrBadIdentifier     = errors.New("task or chunk id unsafe for checkpoint path")

	// Session errors
	ErrBudgetExhausted = errors.New("ledger remaining below emergency threshold")

	// Input validation errors
	ErrInvalidInput   = errors.New("invalid input: nil or malformed")
	ErrDuplicateTask  = errors.New("duplicate task id in queue")
	ErrUnknownDep     = errors.New("dependency references unknown task id")
	ErrDependencyLoop = errors.New("cycle detected in task dependencies")
)
