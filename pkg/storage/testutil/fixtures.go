package testutil

import (
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
)

func TestRecord(round uint64) fl.RoundRecord {
	loss := 0.25 * float64(round)

	return fl.RoundRecord{
		Round:    round,
		Attempts: 1,
		Fit: fl.PhaseOutcome{
			Selected: []string{"client-a", "client-b", "client-c"},
			Returned: []string{"client-a", "client-b"},
			Failed:   []string{"client-c"},
			Required: 2,
		},
		Evaluate: &fl.PhaseOutcome{
			Selected: []string{"client-a", "client-b"},
			Returned: []string{"client-a", "client-b"},
			Failed:   []string{},
			Required: 1,
		},
		FitMetrics: fl.Metrics{"train_loss": 1.5},
		Loss:       &loss,
		Metrics:    fl.Metrics{"accuracy": 0.875},
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(round) * time.Minute),
		Duration:   1500 * time.Millisecond,
	}
}

// TestRecordFitOnly is a record of a round that skipped evaluation.
func TestRecordFitOnly(round uint64) fl.RoundRecord {
	r := TestRecord(round)
	r.Evaluate = nil
	r.Loss = nil
	r.Metrics = nil

	return r
}

func TestParameters(round uint64) fl.ParameterSet {
	return fl.ParameterSet{
		Round: round,
		Tensors: []fl.Tensor{
			{Shape: []int{2, 2}, Values: []float64{0.1, -0.2, 1e-300, float64(round)}},
			{Shape: []int{1}, Values: []float64{3.141592653589793}},
		},
	}
}
