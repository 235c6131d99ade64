// Package gates implements the thermal and memory admission gates.
package gates

import (
	"github.com/taskgov/governor/contracts"
)

// ThermalThresholds are the state boundaries in °C. Each field is the lower
// bound of its state; readings below Warm classify as normal.
type ThermalThresholds struct {
	Warm      float64
	Hot       float64
	Critical  float64
	Emergency float64
}

// DefaultThermalThresholds matches the deployment defaults:
// normal <70, warm 70-80, hot 80-85, critical 85-90, emergency >=90.
func DefaultThermalThresholds() ThermalThresholds {
	return ThermalThresholds{Warm: 70, Hot: 80, Critical: 85, Emergency: 90}
}

// thermalGate implements contracts.ThermalGate. Stateless between calls; the
// only configuration is the threshold set fixed at construction.
type thermalGate struct {
	t ThermalThresholds
}

// NewThermalGate creates a ThermalGate with the given thresholds. Zero-value
// thresholds fall back to the defaults.
func NewThermalGate(t ThermalThresholds) contracts.ThermalGate {
	if t == (ThermalThresholds{}) {
		t = DefaultThermalThresholds()
	}
	return &thermalGate{t: t}
}

// Classify maps a temperature to its ordered thermal state.
func (g *thermalGate) Classify(tempC float64) contracts.ThermalState {
	switch {
	case tempC >= g.t.Emergency:
		return contracts.ThermalEmergency
	case tempC >= g.t.Critical:
		return contracts.ThermalCritical
	case tempC >= g.t.Hot:
		return contracts.ThermalHot
	case tempC >= g.t.Warm:
		return contracts.ThermalWarm
	default:
		return contracts.ThermalNormal
	}
}

// Admit reports whether a task with the given risk class may run now.
// Critical and emergency deny everything; hot denies high-risk tasks.
func (g *thermalGate) Admit(tempC float64, risk contracts.ThermalRisk) (bool, contracts.ThermalState) {
	state := g.Classify(tempC)
	switch state {
	case contracts.ThermalCritical, contracts.ThermalEmergency:
		return false, state
	case contracts.ThermalHot:
		return risk != contracts.RiskHigh, state
	default:
		return true, state
	}
}
