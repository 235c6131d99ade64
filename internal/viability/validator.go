// Package viability implements the statistical pre-execution gate: a small
// stratified sample of a task's input is trialed before the scheduler commits
// full resources to the task.
package viability

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/taskgov/governor/contracts"
)

// Aggregate threshold defaults. The source subsystems reused these without
// per-domain validation, so they are construction parameters here, not
// constants (see ViabilitySpec overrides).
const (
	DefaultFormatThreshold  = 0.80
	DefaultProcessThreshold = 0.60
	DefaultShapeThreshold   = 0.80
	DefaultQualityThreshold = 0.50
)

// DefaultRandomPicks is how many items are drawn from outside the three bands.
const DefaultRandomPicks = 1

// Config fixes the validator's defaults at construction. Zero fields fall
// back to the package defaults.
type Config struct {
	FormatThreshold  float64
	ProcessThreshold float64
	ShapeThreshold   float64
	QualityThreshold float64

	// RandomPicks is the number of extra random samples outside the
	// beginning/middle/end bands.
	RandomPicks int

	// Seed makes the random picks reproducible in tests. Zero seeds from
	// entropy.
	Seed int64
}

type validator struct {
	cfg Config
	rng *rand.Rand
}

// NewValidator creates a ViabilityValidator.
func NewValidator(cfg Config) contracts.ViabilityValidator {
	if cfg.FormatThreshold <= 0 {
		cfg.FormatThreshold = DefaultFormatThreshold
	}
	if cfg.ProcessThreshold <= 0 {
		cfg.ProcessThreshold = DefaultProcessThreshold
	}
	if cfg.ShapeThreshold <= 0 {
		cfg.ShapeThreshold = DefaultShapeThreshold
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.RandomPicks <= 0 {
		cfg.RandomPicks = DefaultRandomPicks
	}
	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &validator{cfg: cfg, rng: rng}
}

// Validate draws the stratified sample, trials each item, and aggregates.
// Per-spec thresholds override the construction defaults when set.
func (v *validator) Validate(ctx context.Context, spec contracts.ViabilitySpec, trial contracts.TrialFunc) (*contracts.VerdictReport, error) {
	if trial == nil {
		return nil, fmt.Errorf("nil trial func: %w", contracts.ErrInvalidInput)
	}
	if spec.CollectionSize <= 0 {
		return nil, fmt.Errorf("collection size %d: %w", spec.CollectionSize, contracts.ErrInvalidInput)
	}

	indices := v.sampleIndices(spec.CollectionSize)

	var formatOK, processOK, shapeOK int
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := trial(idx)
		if err != nil {
			// A trial that errors counts as failing all three checks for
			// that item; the sample still completes.
			continue
		}
		if out.FormatValid {
			formatOK++
		}
		if out.Processed {
			processOK++
		}
		if out.OutputShape {
			shapeOK++
		}
	}

	n := float64(len(indices))
	report := &contracts.VerdictReport{
		FormatRate:  float64(formatOK) / n,
		ProcessRate: float64(processOK) / n,
		ShapeRate:   float64(shapeOK) / n,
		SampleSize:  len(indices),
		Indices:     indices,
	}
	report.QualityScore = (report.FormatRate + report.ProcessRate + report.ShapeRate) / 3

	report.Pass, report.FailedMetric = v.verdict(spec, report)
	return report, nil
}

// verdict checks each rate against its threshold and names the first miss.
func (v *validator) verdict(spec contracts.ViabilitySpec, r *contracts.VerdictReport) (bool, string) {
	format := spec.FormatThreshold
	if format <= 0 {
		format = v.cfg.FormatThreshold
	}
	process := spec.ProcessThreshold
	if process <= 0 {
		process = v.cfg.ProcessThreshold
	}
	shape := spec.ShapeThreshold
	if shape <= 0 {
		shape = v.cfg.ShapeThreshold
	}
	quality := spec.QualityThreshold
	if quality <= 0 {
		quality = v.cfg.QualityThreshold
	}

	switch {
	case r.FormatRate < format:
		return false, "format_valid"
	case r.ProcessRate < process:
		return false, "processed_successfully"
	case r.ShapeRate < shape:
		return false, "output_shape"
	case r.QualityScore < quality:
		return false, "quality_score"
	}
	return true, ""
}

// sampleIndices partitions the collection into beginning (first 10%), middle
// (middle 10%), and end (final 10%) bands, takes every band item, then adds
// random picks from outside the bands. Collections under four items are
// returned whole.
func (v *validator) sampleIndices(size int) []int {
	if size < 4 {
		all := make([]int, size)
		for i := range all {
			all[i] = i
		}
		return all
	}

	band := size / 10
	if band < 1 {
		band = 1
	}

	picked := make(map[int]struct{})
	addRange := func(start, n int) {
		for i := start; i < start+n && i < size; i++ {
			if i >= 0 {
				picked[i] = struct{}{}
			}
		}
	}

	addRange(0, band)             // beginning
	addRange((size-band)/2, band) // middle
	addRange(size-band, band)     // end

	// Random picks outside the three bands, when any such items exist.
	outside := make([]int, 0, size)
	for i := 0; i < size; i++ {
		if _, ok := picked[i]; !ok {
			outside = append(outside, i)
		}
	}
	v.rng.Shuffle(len(outside), func(i, j int) {
		outside[i], outside[j] = outside[j], outside[i]
	})
	for i := 0; i < v.cfg.RandomPicks && i < len(outside); i++ {
		picked[outside[i]] = struct{}{}
	}

	indices := make([]int, 0, len(picked))
	for i := range picked {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}
