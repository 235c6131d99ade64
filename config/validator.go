package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Validator validates governor configurations.
type Validator struct {
	cronParser cron.Parser
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks a Config. Returns nil if valid, or an error describing the
// first validation failure.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return ErrConfigEmpty
	}

	// 1. Budget parameters
	if cfg.Budget.Units <= 0 {
		return ErrBudgetMissing
	}
	if m := cfg.Budget.SafetyMargin; m != 0 && (m <= 0 || m > 1) {
		return fmt.Errorf("safety_margin=%v: %w", m, ErrMarginRange)
	}
	if r := cfg.Budget.ReservedFraction; r != 0 && (r < 0 || r >= 1) {
		return fmt.Errorf("reserved_fraction=%v: %w", r, ErrReservedRange)
	}
	if w := cfg.Budget.Window; w != "" {
		if _, err := time.ParseDuration(w); err != nil {
			return fmt.Errorf("window=%q: %w", w, ErrWindowInvalid)
		}
	}

	// 2. Thermal thresholds strictly increasing when any is set
	t := cfg.Thermal
	if t.WarmC != 0 || t.HotC != 0 || t.CriticalC != 0 || t.EmergencyC != 0 {
		if !(t.WarmC < t.HotC && t.HotC < t.CriticalC && t.CriticalC < t.EmergencyC) {
			return fmt.Errorf("thermal=%+v: %w", t, ErrThermalOrder)
		}
	}

	// 3. Checkpoint directory
	if cfg.Checkpoint.Dir == "" {
		return ErrCheckpointDirMissing
	}

	// 4. Session thresholds
	s := cfg.Session
	if s.CheckpointThresholdUnits != 0 && s.EmergencyThresholdUnits != 0 &&
		s.EmergencyThresholdUnits > s.CheckpointThresholdUnits {
		return fmt.Errorf("emergency=%d checkpoint=%d: %w",
			s.EmergencyThresholdUnits, s.CheckpointThresholdUnits, ErrThresholdOrder)
	}

	// 5. Cron schedule, when present
	if s.Schedule != "" {
		if _, err := v.cronParser.Parse(s.Schedule); err != nil {
			return fmt.Errorf("schedule=%q: %v: %w", s.Schedule, err, ErrScheduleInvalid)
		}
	}

	return nil
}

// WindowDuration returns the parsed budget window, or zero when unset.
// Call Validate first; an invalid window returns zero here.
func (c *Config) WindowDuration() time.Duration {
	if c.Budget.Window == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Budget.Window)
	if err != nil {
		return 0
	}
	return d
}
