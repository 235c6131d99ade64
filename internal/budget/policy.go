package budget

import (
	"fmt"

	"github.com/taskgov/governor/contracts"
)

// Tier boundaries as remaining-budget percentages. A reading at the boundary
// belongs to the more generous tier (>= semantics).
const (
	fullFloor        = 75.0
	moderateFloor    = 25.0
	constrainedFloor = 15.0
	criticalFloor    = 5.0
)

// policy implements contracts.AdaptationPolicy as a fixed lookup table keyed
// by the ordered Tier enum. Adding a tier is a table edit, not new dispatch
// logic.
type policy struct {
	table map[contracts.Tier]contracts.AdaptationParams
}

// DefaultTierTable returns the default parameter table. Every parameter is
// non-increasing from full down to emergency; NewPolicy rejects tables that
// break that.
func DefaultTierTable() map[contracts.Tier]contracts.AdaptationParams {
	return map[contracts.Tier]contracts.AdaptationParams{
		contracts.TierFull:        {SampleCount: 25, ChunkSize: 50, MaxRetries: 3},
		contracts.TierModerate:    {SampleCount: 15, ChunkSize: 30, MaxRetries: 2},
		contracts.TierConstrained: {SampleCount: 8, ChunkSize: 15, MaxRetries: 1},
		contracts.TierCritical:    {SampleCount: 4, ChunkSize: 5, MaxRetries: 1},
		contracts.TierEmergency:   {SampleCount: 2, ChunkSize: 2, MaxRetries: 0},
	}
}

// NewPolicy creates an AdaptationPolicy from the default table.
func NewPolicy() contracts.AdaptationPolicy {
	p, err := NewPolicyFromTable(DefaultTierTable())
	if err != nil {
		// Default table is a compile-time constant; a bad one is a bug.
		panic(err)
	}
	return p
}

// NewPolicyFromTable creates an AdaptationPolicy from a custom table. Every
// tier must be present and parameters must be non-increasing from TierFull
// down to TierEmergency.
func NewPolicyFromTable(table map[contracts.Tier]contracts.AdaptationParams) (contracts.AdaptationPolicy, error) {
	order := []contracts.Tier{
		contracts.TierFull,
		contracts.TierModerate,
		contracts.TierConstrained,
		contracts.TierCritical,
		contracts.TierEmergency,
	}
	for _, tier := range order {
		if _, ok := table[tier]; !ok {
			return nil, fmt.Errorf("tier table missing %s: %w", tier, contracts.ErrInvalidInput)
		}
	}
	for i := 1; i < len(order); i++ {
		hi, lo := table[order[i-1]], table[order[i]]
		if lo.SampleCount > hi.SampleCount || lo.ChunkSize > hi.ChunkSize || lo.MaxRetries > hi.MaxRetries {
			return nil, fmt.Errorf("tier %s more generous than %s: %w", order[i], order[i-1], contracts.ErrInvalidInput)
		}
	}
	cp := make(map[contracts.Tier]contracts.AdaptationParams, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &policy{table: cp}, nil
}

// TierFor maps a remaining-budget percentage to its tier.
func (p *policy) TierFor(remainingPercent float64) contracts.Tier {
	switch {
	case remainingPercent >= fullFloor:
		return contracts.TierFull
	case remainingPercent >= moderateFloor:
		return contracts.TierModerate
	case remainingPercent >= constrainedFloor:
		return contracts.TierConstrained
	case remainingPercent >= criticalFloor:
		return contracts.TierCritical
	default:
		return contracts.TierEmergency
	}
}

// Params returns the fixed parameter set for a tier. Unknown tiers get the
// emergency row; never more generous than the table supports.
func (p *policy) Params(tier contracts.Tier) contracts.AdaptationParams {
	if params, ok := p.table[tier]; ok {
		return params
	}
	return p.table[contracts.TierEmergency]
}
