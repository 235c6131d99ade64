// Package sched implements the session scheduler: admission through the
// thermal, memory, and budget gates, tier adaptation, viability validation,
// checkpointed execution, and session reporting.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/taskgov/governor/contracts"
	"github.com/taskgov/governor/pkg/logx"
)

// Session threshold defaults, in consumption units.
const (
	DefaultCheckpointThreshold contracts.Units = 30000
	DefaultEmergencyThreshold  contracts.Units = 10000
	DefaultCriticalFloor       contracts.Units = 15000
)

// Config fixes the scheduler's session-level thresholds.
type Config struct {
	// CheckpointThreshold stops the session (with a resumable checkpoint)
	// when ledger remaining drops below it.
	CheckpointThreshold contracts.Units

	// EmergencyThreshold stops the session as budget exhaustion.
	EmergencyThreshold contracts.Units

	// CriticalFloor defers tasks below PriorityCritical while remaining is
	// under it; the session itself continues.
	CriticalFloor contracts.Units

	// EmergencyMinPriority is the lowest priority admitted while the
	// adaptation tier is at emergency. Defaults to PriorityCritical.
	EmergencyMinPriority contracts.Priority
}

func (c Config) withDefaults() Config {
	if c.CheckpointThreshold <= 0 {
		c.CheckpointThreshold = DefaultCheckpointThreshold
	}
	if c.EmergencyThreshold <= 0 {
		c.EmergencyThreshold = DefaultEmergencyThreshold
	}
	if c.CriticalFloor <= 0 {
		c.CriticalFloor = DefaultCriticalFloor
	}
	if c.EmergencyMinPriority == 0 {
		c.EmergencyMinPriority = contracts.PriorityCritical
	}
	return c
}

// Deps contains everything the scheduler needs. Boost and Clock are optional.
type Deps struct {
	Thermal     contracts.ThermalGate
	Memory      contracts.MemoryGate
	Ledger      contracts.Ledger
	Policy      contracts.AdaptationPolicy
	Validator   contracts.ViabilityValidator
	Checkpoints contracts.CheckpointManager
	Executor    contracts.Executor

	ThermalSource contracts.ThermalSource
	MemorySource  contracts.MemorySource

	Boost contracts.PriorityBoost
	Log   logx.Logger
	Clock func() time.Time
}

// Scheduler coordinates one session at a time. Single-threaded and
// cooperative: a second task never starts while one is in progress, and
// nothing preempts in-flight work except the emergency checkpoint path.
type Scheduler struct {
	cfg  Config
	deps Deps
}

// New creates a Scheduler. All Deps except Boost, Log, and Clock are
// required.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	switch {
	case deps.Thermal == nil, deps.Memory == nil, deps.Ledger == nil,
		deps.Policy == nil, deps.Validator == nil, deps.Checkpoints == nil,
		deps.Executor == nil, deps.ThermalSource == nil, deps.MemorySource == nil:
		return nil, fmt.Errorf("missing scheduler dependency: %w", contracts.ErrInvalidInput)
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Scheduler{cfg: cfg.withDefaults(), deps: deps}, nil
}

// session carries the per-session mutable state, owned by one RunSession call.
type session struct {
	queue   *taskQueue
	all     []*entry
	states  map[contracts.TaskID]contracts.TaskState
	started time.Time

	// progress flags whether the current pass completed any work; a pass
	// without progress ends the session instead of spinning on deferrals.
	progress bool
	deferred []*entry

	// emergencyStop marks that the in-flight task was interrupted by the
	// thermal emergency path and the loop must checkpoint and terminate.
	emergencyStop bool
}

// RunSession validates the queue, then loops until it is drained, stalled,
// or a session-level stop condition fires. Every enqueued task appears in
// the report with a final disposition.
func (s *Scheduler) RunSession(ctx context.Context, defs []*contracts.TaskDefinition) (*contracts.SessionReport, error) {
	if err := validateQueue(defs); err != nil {
		return nil, err
	}

	sess := &session{
		queue:   newTaskQueue(),
		states:  make(map[contracts.TaskID]contracts.TaskState, len(defs)),
		started: s.deps.Clock(),
	}
	for _, def := range defs {
		e := &entry{def: def}
		sess.queue.push(e)
		sess.all = append(sess.all, e)
		sess.states[def.ID] = contracts.TaskQueued
	}

	s.deps.Log.Info("session started", logx.Int("tasks", len(defs)))

	stop := s.loop(ctx, sess)
	report := s.report(sess, stop)

	s.deps.Log.Info("session ended",
		logx.String("stop_reason", string(stop)),
		logx.Int("completed", report.Completed),
		logx.Int("deferred", report.Deferred),
		logx.Int("failed", report.Failed),
		logx.Int("blocked", report.Blocked))
	return report, nil
}

func (s *Scheduler) loop(ctx context.Context, sess *session) contracts.StopReason {
	for {
		if reason, stopped := s.stopCondition(ctx); stopped {
			s.checkpointSession(sess, reason, nil)
			return reason
		}

		e, blocked := sess.queue.pop(s.deps.Clock(), s.deps.Boost, sess.states)
		for _, b := range blocked {
			s.setState(sess, b, contracts.TaskBlocked, "dependency not completed")
		}
		if e == nil {
			if sess.queue.len() == 0 && len(sess.deferred) == 0 {
				return contracts.StopQueueDrained
			}
			if !sess.progress {
				s.checkpointSession(sess, contracts.StopQueueStalled, nil)
				return contracts.StopQueueStalled
			}
			// New pass: deferred tasks re-enter with original priority.
			for _, d := range sess.deferred {
				sess.queue.requeue(d)
				sess.states[d.def.ID] = contracts.TaskQueued
			}
			sess.deferred = nil
			sess.progress = false
			continue
		}

		s.runTask(ctx, sess, e)

		// The emergency checkpoint path is the only mid-task stop; it leaves
		// the task deferred and pending-first in the checkpoint.
		if sess.emergencyStop {
			s.checkpointSession(sess, contracts.StopThermalEmergency, e)
			return contracts.StopThermalEmergency
		}
	}
}

// stopCondition re-checks the session-level stop conditions evaluated before
// every scheduling decision.
func (s *Scheduler) stopCondition(ctx context.Context) (contracts.StopReason, bool) {
	if ctx.Err() != nil {
		return contracts.StopContextCancelled, true
	}

	if temp, err := s.deps.ThermalSource.ReadTemperature(ctx); err == nil {
		if s.deps.Thermal.Classify(temp) == contracts.ThermalEmergency {
			s.deps.Log.Warn("thermal emergency", logx.Float64("temp_c", temp))
			return contracts.StopThermalEmergency, true
		}
	} else {
		s.deps.Log.Warn("thermal reading failed", logx.Err(err))
	}

	rem := s.deps.Ledger.Remaining()
	if rem < s.cfg.EmergencyThreshold {
		s.deps.Log.Warn("budget exhausted", logx.Int64("remaining", int64(rem)))
		return contracts.StopBudgetExhausted, true
	}
	if rem < s.cfg.CheckpointThreshold {
		s.deps.Log.Warn("budget checkpoint threshold reached", logx.Int64("remaining", int64(rem)))
		return contracts.StopBudgetCheckpoint, true
	}
	return "", false
}

// runTask takes one task through admission and execution. The entry leaves
// in a terminal state or deferred.
func (s *Scheduler) runTask(ctx context.Context, sess *session, e *entry) {
	log := s.deps.Log.With(logx.String("task", string(e.def.ID)))

	tier, ok := s.admit(ctx, sess, e, log)
	if !ok {
		return
	}

	params := s.deps.Policy.Params(tier)
	s.setState(sess, e, contracts.TaskInProgress, "")
	log.Info("task admitted",
		logx.String("tier", tier.String()),
		logx.Int("max_retries", params.MaxRetries))

	if e.def.Chunked() {
		s.runChunked(ctx, sess, e, params, log)
		return
	}
	s.runSingle(ctx, sess, e, params, log)
}

// admit runs the full admission sequence: thermal gate, memory gate, budget
// floor, tier floor, then the viability gate for chunked tasks that carry a
// sampling spec. A denial defers the task; only validation errors fail it.
func (s *Scheduler) admit(ctx context.Context, sess *session, e *entry, log logx.Logger) (contracts.Tier, bool) {
	temp, err := s.deps.ThermalSource.ReadTemperature(ctx)
	if err != nil {
		s.deferTask(sess, e, fmt.Sprintf("thermal reading unavailable: %v", err))
		return 0, false
	}
	if allowed, state := s.deps.Thermal.Admit(temp, e.def.Estimate.Risk); !allowed {
		s.deferTask(sess, e, fmt.Sprintf("thermal gate: %s at %.1f°C", state, temp))
		return 0, false
	}

	avail, err := s.deps.MemorySource.AvailableGB(ctx)
	if err != nil {
		s.deferTask(sess, e, fmt.Sprintf("memory reading unavailable: %v", err))
		return 0, false
	}
	if allowed, shortfall := s.deps.Memory.Admit(e.def.Estimate.MemoryGB, avail); !allowed {
		s.deferTask(sess, e, fmt.Sprintf("memory gate: short %.2fGB", shortfall))
		return 0, false
	}

	rem := s.deps.Ledger.Remaining()
	if rem < s.cfg.CriticalFloor && e.def.Priority < contracts.PriorityCritical {
		s.deferTask(sess, e, fmt.Sprintf("budget below critical floor (%d remaining)", rem))
		return 0, false
	}
	if e.def.Estimate.Units > rem {
		s.deferTask(sess, e, fmt.Sprintf("estimate %d exceeds remaining budget %d", e.def.Estimate.Units, rem))
		return 0, false
	}

	tier := s.deps.Policy.TierFor(s.deps.Ledger.RemainingPercent())
	if tier == contracts.TierEmergency && e.def.Priority < s.cfg.EmergencyMinPriority {
		s.deferTask(sess, e, "emergency tier admits only critical tasks")
		return 0, false
	}

	if e.def.Chunked() && e.def.Viability != nil {
		s.setState(sess, e, contracts.TaskValidating, "")
		verdict, err := s.deps.Validator.Validate(ctx, *e.def.Viability, func(i int) (contracts.TrialOutcome, error) {
			return s.deps.Executor.Trial(ctx, e.def, i)
		})
		if err != nil {
			s.deferTask(sess, e, fmt.Sprintf("viability validation error: %v", err))
			return 0, false
		}
		if !verdict.Pass {
			// A viability miss is not a retry; the task returns to the queue
			// with the failing metric attached.
			log.Warn("viability gate failed",
				logx.String("metric", verdict.FailedMetric),
				logx.Float64("quality", verdict.QualityScore))
			s.deferTask(sess, e, fmt.Sprintf("viability: %s below threshold", verdict.FailedMetric))
			return 0, false
		}
		log.Debug("viability gate passed",
			logx.Int("sample", verdict.SampleSize),
			logx.Float64("quality", verdict.QualityScore))
	}

	s.setState(sess, e, contracts.TaskAdmitted, "")
	return tier, true
}

// runSingle executes an unchunked task in one step, retrying up to the
// tier's budget.
func (s *Scheduler) runSingle(ctx context.Context, sess *session, e *entry, params contracts.AdaptationParams, log logx.Logger) {
	var lastErr error
	for attempt := 0; attempt <= params.MaxRetries; attempt++ {
		if attempt > 0 {
			// Retries re-run the admission sequence; conditions may have
			// shifted while the previous attempt ran.
			if _, ok := s.admit(ctx, sess, e, log); !ok {
				return
			}
			s.setState(sess, e, contracts.TaskInProgress, "")
		}
		e.attempts++

		res, err := s.deps.Executor.Execute(ctx, e.def, params)
		if err != nil {
			lastErr = err
			log.Warn("execution attempt failed", logx.Int("attempt", e.attempts), logx.Err(err))
			continue
		}

		units := res.ActualUnits
		if units <= 0 {
			units = e.def.Estimate.Units
		}
		s.deps.Ledger.Record(units, s.deps.Clock(), e.def.ID)
		e.units += units
		s.setState(sess, e, contracts.TaskCompleted, "")
		sess.progress = true
		log.Info("task completed", logx.Int64("units", int64(units)))
		return
	}
	s.fail(sess, e, fmt.Errorf("%v: %w", lastErr, contracts.ErrExecutionFailed))
}

// runChunked resumes from the manifest and executes only the unfinished
// chunks, checkpointing after each and re-evaluating the thermal stop
// condition between chunks.
func (s *Scheduler) runChunked(ctx context.Context, sess *session, e *entry, params contracts.AdaptationParams, log logx.Logger) {
	remaining, err := s.deps.Checkpoints.Resume(e.def.ID, e.def.Chunks)
	if err != nil {
		// Corruption is fatal for this task only, never silently ignored.
		s.fail(sess, e, err)
		return
	}
	if len(remaining) < len(e.def.Chunks) {
		log.Info("resuming chunked task",
			logx.Int("total", len(e.def.Chunks)),
			logx.Int("remaining", len(remaining)))
	}

	perChunkEstimate := e.def.Estimate.Units
	if n := len(e.def.Chunks); n > 0 {
		perChunkEstimate = e.def.Estimate.Units / contracts.Units(n)
	}

	for i, chunk := range remaining {
		// Between chunks control returns here: the in-flight chunk always
		// finishes, then the emergency path checkpoints and stops.
		if i > 0 {
			if temp, err := s.deps.ThermalSource.ReadTemperature(ctx); err == nil {
				if s.deps.Thermal.Classify(temp) == contracts.ThermalEmergency {
					sess.emergencyStop = true
					s.deferTask(sess, e, "session stopped: thermal emergency")
					return
				}
			}
			if ctx.Err() != nil {
				s.deferTask(sess, e, "context cancelled mid-task")
				return
			}
		}

		ok := s.runChunk(ctx, sess, e, chunk, params, perChunkEstimate, log)
		if !ok {
			return
		}
	}
	s.setState(sess, e, contracts.TaskCompleted, "")
	sess.progress = true
	log.Info("chunked task completed", logx.Int("chunks", len(e.def.Chunks)))
}

// runChunk executes one chunk with tier-bounded retries. On success the
// chunk is checkpointed before the loop moves on; on failure the chunk stays
// absent from the manifest, so a later resume retries exactly it.
func (s *Scheduler) runChunk(ctx context.Context, sess *session, e *entry, chunk contracts.ChunkID, params contracts.AdaptationParams, estimate contracts.Units, log logx.Logger) bool {
	var lastErr error
	for attempt := 0; attempt <= params.MaxRetries; attempt++ {
		e.attempts++
		res, err := s.deps.Executor.ExecuteChunk(ctx, e.def, chunk, params)
		if err != nil {
			lastErr = err
			log.Warn("chunk attempt failed",
				logx.String("chunk", string(chunk)),
				logx.Int("attempt", attempt+1),
				logx.Err(err))
			continue
		}

		if err := s.deps.Checkpoints.SaveChunk(e.def.ID, chunk, res.Payload); err != nil {
			s.fail(sess, e, err)
			return false
		}

		units := res.ActualUnits
		if units <= 0 {
			units = estimate
		}
		s.deps.Ledger.Record(units, s.deps.Clock(), e.def.ID)
		e.units += units
		sess.progress = true
		return true
	}
	s.fail(sess, e, fmt.Errorf("chunk %s: %v: %w", chunk, lastErr, contracts.ErrExecutionFailed))
	return false
}

func (s *Scheduler) deferTask(sess *session, e *entry, reason string) {
	s.setState(sess, e, contracts.TaskDeferred, reason)
	sess.deferred = append(sess.deferred, e)
	s.deps.Log.Info("task deferred",
		logx.String("task", string(e.def.ID)),
		logx.String("reason", reason))
}

func (s *Scheduler) fail(sess *session, e *entry, err error) {
	s.setState(sess, e, contracts.TaskFailed, err.Error())
	sess.progress = true
	s.deps.Log.Error("task failed",
		logx.String("task", string(e.def.ID)),
		logx.Err(err))
}

func (s *Scheduler) setState(sess *session, e *entry, state contracts.TaskState, reason string) {
	e.state = state
	if reason != "" {
		e.reason = reason
	}
	sess.states[e.def.ID] = state
}

// checkpointSession persists the resumable snapshot. The in-flight entry, if
// any, goes first so resumption picks it up before anything else.
func (s *Scheduler) checkpointSession(sess *session, reason contracts.StopReason, inFlight *entry) {
	pending := make([]contracts.TaskID, 0, sess.queue.len()+len(sess.deferred)+1)
	if inFlight != nil {
		pending = append(pending, inFlight.def.ID)
	}
	pending = append(pending, sess.queue.ids()...)
	for _, d := range sess.deferred {
		if inFlight != nil && d.def.ID == inFlight.def.ID {
			continue
		}
		pending = append(pending, d.def.ID)
	}

	cp := &contracts.SessionCheckpoint{
		SavedAt:    s.deps.Clock(),
		StopReason: reason,
		Pending:    pending,
	}
	if err := s.deps.Checkpoints.SaveSession(cp); err != nil {
		s.deps.Log.Error("session checkpoint write failed", logx.Err(err))
	}
}

// report builds the session summary. No task silently vanishes: entries that
// never reached a terminal state are reported deferred.
func (s *Scheduler) report(sess *session, stop contracts.StopReason) *contracts.SessionReport {
	report := &contracts.SessionReport{
		StartedAt:  sess.started,
		EndedAt:    s.deps.Clock(),
		StopReason: stop,
		FinalTier:  s.deps.Policy.TierFor(s.deps.Ledger.RemainingPercent()),
		Ledger:     s.deps.Ledger.Snapshot(),
	}
	for _, e := range sess.all {
		state := e.state
		switch state {
		case contracts.TaskCompleted:
			report.Completed++
		case contracts.TaskFailed:
			report.Failed++
		case contracts.TaskBlocked:
			report.Blocked++
		default:
			// Queued, validating, or deferred at session end all report as
			// deferred: the work remains pending and resumable.
			state = contracts.TaskDeferred
			report.Deferred++
		}
		report.Tasks = append(report.Tasks, contracts.TaskDisposition{
			ID:       e.def.ID,
			Name:     e.def.Name,
			Domain:   e.def.Domain,
			State:    state,
			Reason:   e.reason,
			Attempts: e.attempts,
			Units:    e.units,
		})
	}
	return report
}

// validateQueue rejects duplicate IDs, unknown dependency references, and
// dependency cycles before any task runs.
func validateQueue(defs []*contracts.TaskDefinition) error {
	ids := make(map[contracts.TaskID]bool, len(defs))
	for _, def := range defs {
		if def == nil || def.ID == "" {
			return contracts.ErrInvalidInput
		}
		if ids[def.ID] {
			return fmt.Errorf("task %s: %w", def.ID, contracts.ErrDuplicateTask)
		}
		ids[def.ID] = true
	}

	deps := make(map[contracts.TaskID][]contracts.TaskID, len(defs))
	for _, def := range defs {
		for _, dep := range def.Contract.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("task %s depends on %s: %w", def.ID, dep, contracts.ErrUnknownDep)
			}
			deps[def.ID] = append(deps[def.ID], dep)
		}
	}

	// DFS with color marking.
	const (
		white = iota
		gray
		black
	)
	color := make(map[contracts.TaskID]int, len(defs))
	var visit func(id contracts.TaskID) error
	visit = func(id contracts.TaskID) error {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return fmt.Errorf("task %s: %w", id, contracts.ErrDependencyLoop)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, def := range defs {
		if color[def.ID] == white {
			if err := visit(def.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
