// Package config loads and validates governor configuration from JSON or
// YAML files.
package config

// Config is the top-level governor configuration.
//
// All durations are Go duration strings (e.g. "30m", "5h").
type Config struct {
	Thermal    ThermalConfig    `json:"thermal"`
	Memory     MemoryConfig     `json:"memory"`
	Budget     BudgetConfig     `json:"budget"`
	Viability  ViabilityConfig  `json:"viability,omitempty"`
	Session    SessionConfig    `json:"session"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
}

// ThermalConfig fixes the gate thresholds (°C) and the sensor source.
// Thresholds must be strictly increasing; zero values take the defaults
// (70/80/85/90).
type ThermalConfig struct {
	WarmC      float64 `json:"warm_c,omitempty"`
	HotC       float64 `json:"hot_c,omitempty"`
	CriticalC  float64 `json:"critical_c,omitempty"`
	EmergencyC float64 `json:"emergency_c,omitempty"`

	// SensorPath is the thermal zone file; empty uses the platform default.
	SensorPath string `json:"sensor_path,omitempty"`
}

// MemoryConfig fixes the admission safety floor and the sensor source.
type MemoryConfig struct {
	SafetyFloorGB float64 `json:"safety_floor_gb,omitempty"`
	MeminfoPath   string  `json:"meminfo_path,omitempty"`
}

// BudgetConfig fixes the consumption ledger parameters.
type BudgetConfig struct {
	// Units is the hard budget per rolling window. Required.
	Units int64 `json:"units"`

	// SafetyMargin scales the budget down (0 < m <= 1). Zero takes 0.85.
	SafetyMargin float64 `json:"safety_margin,omitempty"`

	// ReservedFraction is the emergency pool share. Zero takes 0.10.
	ReservedFraction float64 `json:"reserved_fraction,omitempty"`

	// Window is the rolling-window duration string. Empty takes "5h".
	Window string `json:"window,omitempty"`
}

// ViabilityConfig overrides the validator's default thresholds.
type ViabilityConfig struct {
	FormatThreshold  float64 `json:"format_threshold,omitempty"`
	ProcessThreshold float64 `json:"process_threshold,omitempty"`
	ShapeThreshold   float64 `json:"shape_threshold,omitempty"`
	QualityThreshold float64 `json:"quality_threshold,omitempty"`
	RandomPicks      int     `json:"random_picks,omitempty"`
}

// SessionConfig fixes the session-level thresholds and the daemon schedule.
type SessionConfig struct {
	CheckpointThresholdUnits int64 `json:"checkpoint_threshold_units,omitempty"`
	EmergencyThresholdUnits  int64 `json:"emergency_threshold_units,omitempty"`
	CriticalFloorUnits       int64 `json:"critical_floor_units,omitempty"`

	// Schedule is an optional cron spec for recurring sessions (governd).
	// Empty means run a single session and exit.
	Schedule string `json:"schedule,omitempty"`
}

// CheckpointConfig fixes where chunk files and manifests live.
type CheckpointConfig struct {
	Dir string `json:"dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
}

// StorageConfig controls the optional SQLite session archive.
type StorageConfig struct {
	Path string `json:"path"`
}
