package sched

import (
	"time"

	"github.com/taskgov/governor/contracts"
	"github.com/taskgov/governor/internal/budget"
	"github.com/taskgov/governor/internal/checkpoint"
	"github.com/taskgov/governor/internal/gates"
	"github.com/taskgov/governor/internal/viability"
	"github.com/taskgov/governor/pkg/logx"
)

// FactoryOptions customizes scheduler assembly. Zero values take the
// component defaults.
type FactoryOptions struct {
	Thermal    gates.ThermalThresholds
	MemFloorGB float64
	Ledger     budget.LedgerConfig
	Viability  viability.Config
	Session    Config

	// CheckpointDir is where chunk files and manifests live. Required.
	CheckpointDir string

	Boost contracts.PriorityBoost
	Log   logx.Logger
}

// NewWithDefaults assembles a Scheduler from default components. The
// executor and the two reading sources are the external collaborators the
// caller must supply.
func NewWithDefaults(
	opts FactoryOptions,
	executor contracts.Executor,
	thermal contracts.ThermalSource,
	memory contracts.MemorySource,
) (*Scheduler, error) {
	checkpoints, err := checkpoint.NewManager(opts.CheckpointDir, opts.Log)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Thermal:       gates.NewThermalGate(opts.Thermal),
		Memory:        gates.NewMemoryGate(opts.MemFloorGB),
		Ledger:        budget.NewLedger(opts.Ledger, time.Now()),
		Policy:        budget.NewPolicy(),
		Validator:     viability.NewValidator(opts.Viability),
		Checkpoints:   checkpoints,
		Executor:      executor,
		ThermalSource: thermal,
		MemorySource:  memory,
		Boost:         opts.Boost,
		Log:           opts.Log,
	}
	return New(opts.Session, deps)
}
