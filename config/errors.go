package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrConfigEmpty is returned when the config data is empty (zero bytes).
	ErrConfigEmpty = errors.New("governor configuration is empty")

	// ErrBudgetMissing is returned when budget.units is absent or non-positive.
	ErrBudgetMissing = errors.New("budget.units must be positive")

	// ErrMarginRange is returned when budget.safety_margin is outside (0, 1].
	ErrMarginRange = errors.New("budget.safety_margin must be in (0, 1]")

	// ErrReservedRange is returned when budget.reserved_fraction is outside [0, 1).
	ErrReservedRange = errors.New("budget.reserved_fraction must be in [0, 1)")

	// ErrWindowInvalid is returned when budget.window fails to parse.
	ErrWindowInvalid = errors.New("budget.window is not a valid duration")

	// ErrThermalOrder is returned when thermal thresholds are not strictly increasing.
	ErrThermalOrder = errors.New("thermal thresholds must be strictly increasing")

	// ErrCheckpointDirMissing is returned when checkpoint.dir is empty.
	ErrCheckpointDirMissing = errors.New("checkpoint.dir is required")

	// ErrThresholdOrder is returned when session thresholds are inverted.
	ErrThresholdOrder = errors.New("session emergency threshold must not exceed checkpoint threshold")

	// ErrScheduleInvalid is returned when session.schedule fails to parse.
	ErrScheduleInvalid = errors.New("session.schedule is not a valid cron spec")
)
