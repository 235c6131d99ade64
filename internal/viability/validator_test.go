package viability

import (
	"context"
	"errors"
	"testing"

	"github.com/taskgov/governor/contracts"
)

// trialScript returns scripted outcomes in call order, regardless of index.
func trialScript(outcomes []contracts.TrialOutcome) contracts.TrialFunc {
	calls := 0
	return func(int) (contracts.TrialOutcome, error) {
		out := outcomes[calls%len(outcomes)]
		calls++
		return out, nil
	}
}

func allGood(n int) []contracts.TrialOutcome {
	out := make([]contracts.TrialOutcome, n)
	for i := range out {
		out[i] = contracts.TrialOutcome{FormatValid: true, Processed: true, OutputShape: true}
	}
	return out
}

// fiveSampleValidator yields exactly five sampled indices for a ten-item
// collection: one per band plus two seeded random picks.
func fiveSampleValidator() contracts.ViabilityValidator {
	return NewValidator(Config{RandomPicks: 2, Seed: 7})
}

func TestValidator_ThresholdBoundaries(t *testing.T) {
	spec := contracts.ViabilitySpec{CollectionSize: 10}

	tests := []struct {
		name       string
		mutate     func(outs []contracts.TrialOutcome)
		wantPass   bool
		wantMetric string
	}{
		{
			name:     "all rates at ceiling",
			mutate:   func([]contracts.TrialOutcome) {},
			wantPass: true,
		},
		{
			name: "format rate exactly at threshold",
			mutate: func(outs []contracts.TrialOutcome) {
				outs[4].FormatValid = false // 4/5 = 0.80
			},
			wantPass: true,
		},
		{
			name: "format rate one item below threshold",
			mutate: func(outs []contracts.TrialOutcome) {
				outs[3].FormatValid = false
				outs[4].FormatValid = false // 3/5 = 0.60
			},
			wantPass:   false,
			wantMetric: "format_valid",
		},
		{
			name: "process rate exactly at threshold",
			mutate: func(outs []contracts.TrialOutcome) {
				outs[3].Processed = false
				outs[4].Processed = false // 3/5 = 0.60
			},
			wantPass: true,
		},
		{
			name: "process rate one item below threshold",
			mutate: func(outs []contracts.TrialOutcome) {
				outs[2].Processed = false
				outs[3].Processed = false
				outs[4].Processed = false // 2/5 = 0.40
			},
			wantPass:   false,
			wantMetric: "processed_successfully",
		},
		{
			name: "shape rate one item below threshold",
			mutate: func(outs []contracts.TrialOutcome) {
				outs[3].OutputShape = false
				outs[4].OutputShape = false // 3/5 = 0.60
			},
			wantPass:   false,
			wantMetric: "output_shape",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := fiveSampleValidator()
			outs := allGood(5)
			tt.mutate(outs)

			report, err := v.Validate(context.Background(), spec, trialScript(outs))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if report.SampleSize != 5 {
				t.Fatalf("sample size = %d, want 5", report.SampleSize)
			}
			if report.Pass != tt.wantPass {
				t.Errorf("pass = %v, want %v (report %+v)", report.Pass, tt.wantPass, report)
			}
			if report.FailedMetric != tt.wantMetric {
				t.Errorf("failed metric = %q, want %q", report.FailedMetric, tt.wantMetric)
			}
		})
	}
}

func TestValidator_SpecThresholdOverrides(t *testing.T) {
	v := fiveSampleValidator()

	// Rates 1.0 / 0.60 / 0.80 clear the per-metric thresholds; the raised
	// per-task quality threshold is what fails the verdict.
	outs := allGood(5)
	outs[3].Processed = false
	outs[4].Processed = false
	outs[4].OutputShape = false

	spec := contracts.ViabilitySpec{CollectionSize: 10, QualityThreshold: 0.9}
	report, err := v.Validate(context.Background(), spec, trialScript(outs))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Pass {
		t.Fatal("verdict passed despite quality score below the override")
	}
	if report.FailedMetric != "quality_score" {
		t.Errorf("failed metric = %q, want quality_score", report.FailedMetric)
	}
}

func TestValidator_TrialErrorCountsAgainstAllMetrics(t *testing.T) {
	v := fiveSampleValidator()

	calls := 0
	trial := func(int) (contracts.TrialOutcome, error) {
		calls++
		if calls <= 2 {
			return contracts.TrialOutcome{}, errors.New("trial blew up")
		}
		return contracts.TrialOutcome{FormatValid: true, Processed: true, OutputShape: true}, nil
	}

	report, err := v.Validate(context.Background(), contracts.ViabilitySpec{CollectionSize: 10}, trial)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	// Two erroring trials out of five drag every rate to 0.60.
	if report.Pass {
		t.Fatal("verdict passed despite erroring trials dragging rates down")
	}
	if report.FailedMetric != "format_valid" {
		t.Errorf("failed metric = %q, want format_valid", report.FailedMetric)
	}
}

func TestValidator_SmallCollectionSamplesEverything(t *testing.T) {
	v := NewValidator(Config{Seed: 1})

	var seen []int
	trial := func(idx int) (contracts.TrialOutcome, error) {
		seen = append(seen, idx)
		return contracts.TrialOutcome{FormatValid: true, Processed: true, OutputShape: true}, nil
	}

	report, err := v.Validate(context.Background(), contracts.ViabilitySpec{CollectionSize: 3}, trial)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.SampleSize != 3 {
		t.Fatalf("sample size = %d, want whole collection of 3", report.SampleSize)
	}
	for i, idx := range seen {
		if idx != i {
			t.Errorf("seen[%d] = %d, want %d", i, idx, i)
		}
	}
	if !report.Pass {
		t.Error("verdict failed on an all-good small collection")
	}
}

func TestValidator_SampleCoversBands(t *testing.T) {
	v := NewValidator(Config{Seed: 42})

	report, err := v.Validate(context.Background(), contracts.ViabilitySpec{CollectionSize: 100},
		trialScript(allGood(1)))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	got := make(map[int]bool, len(report.Indices))
	prev := -1
	for _, idx := range report.Indices {
		if idx < 0 || idx >= 100 {
			t.Fatalf("index %d out of collection bounds", idx)
		}
		if idx <= prev {
			t.Fatalf("indices not strictly increasing at %d", idx)
		}
		prev = idx
		got[idx] = true
	}

	// Bands for a 100-item collection: first, middle, and final ten indices.
	for i := 0; i < 10; i++ {
		if !got[i] {
			t.Errorf("beginning band index %d not sampled", i)
		}
		if !got[45+i] {
			t.Errorf("middle band index %d not sampled", 45+i)
		}
		if !got[90+i] {
			t.Errorf("end band index %d not sampled", 90+i)
		}
	}
	if report.SampleSize != 31 {
		t.Errorf("sample size = %d, want 30 band items plus one random pick", report.SampleSize)
	}
}

func TestValidator_SeededDeterminism(t *testing.T) {
	spec := contracts.ViabilitySpec{CollectionSize: 50}

	run := func() []int {
		v := NewValidator(Config{Seed: 99, RandomPicks: 3})
		report, err := v.Validate(context.Background(), spec, trialScript(allGood(1)))
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		return report.Indices
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("sample sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("index %d differs across identically seeded runs: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestValidator_InputErrors(t *testing.T) {
	v := NewValidator(Config{Seed: 1})

	t.Run("nil trial func", func(t *testing.T) {
		_, err := v.Validate(context.Background(), contracts.ViabilitySpec{CollectionSize: 10}, nil)
		if !errors.Is(err, contracts.ErrInvalidInput) {
			t.Fatalf("Validate() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("empty collection", func(t *testing.T) {
		_, err := v.Validate(context.Background(), contracts.ViabilitySpec{}, trialScript(allGood(1)))
		if !errors.Is(err, contracts.ErrInvalidInput) {
			t.Fatalf("Validate() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := v.Validate(ctx, contracts.ViabilitySpec{CollectionSize: 10}, trialScript(allGood(1)))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Validate() error = %v, want context.Canceled", err)
		}
	})
}
