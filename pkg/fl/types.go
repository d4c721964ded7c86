package fl

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Tensor is a dense, row-major block of model weights.
type Tensor struct {
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// Size returns the number of elements the shape describes.
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}

	return n
}

func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("%w: tensor has no shape", ErrInvalidTensor)
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension %d in shape %v", ErrInvalidTensor, d, t.Shape)
		}
	}
	if len(t.Values) != t.Size() {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrInvalidTensor, t.Shape, t.Size(), len(t.Values))
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape:  slices.Clone(t.Shape),
		Values: slices.Clone(t.Values),
	}
}

// ParameterSet is one version of the global model. Round 0 is the initial
// version; every published round replaces it with a new value.
type ParameterSet struct {
	Round   uint64   `json:"round"`
	Tensors []Tensor `json:"tensors"`
}

func (p ParameterSet) Validate() error {
	if len(p.Tensors) == 0 {
		return fmt.Errorf("%w: parameter set has no tensors", ErrInvalidTensor)
	}
	for i, t := range p.Tensors {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tensor %d: %w", i, err)
		}
	}

	return nil
}

// Clone returns a deep copy that shares no backing arrays with p.
func (p ParameterSet) Clone() ParameterSet {
	tensors := make([]Tensor, len(p.Tensors))
	for i, t := range p.Tensors {
		tensors[i] = t.Clone()
	}

	return ParameterSet{
		Round:   p.Round,
		Tensors: tensors,
	}
}

func (p ParameterSet) Shapes() [][]int {
	shapes := make([][]int, len(p.Tensors))
	for i, t := range p.Tensors {
		shapes[i] = slices.Clone(t.Shape)
	}

	return shapes
}

// CompatibleWith reports ErrShapeMismatch unless both sets carry the same
// shape sequence.
func (p ParameterSet) CompatibleWith(other ParameterSet) error {
	if len(p.Tensors) != len(other.Tensors) {
		return fmt.Errorf("%w: %d tensors vs %d", ErrShapeMismatch, len(p.Tensors), len(other.Tensors))
	}
	for i := range p.Tensors {
		if !slices.Equal(p.Tensors[i].Shape, other.Tensors[i].Shape) {
			return fmt.Errorf("%w: tensor %d has shape %v vs %v", ErrShapeMismatch, i, p.Tensors[i].Shape, other.Tensors[i].Shape)
		}
		if len(p.Tensors[i].Values) != len(other.Tensors[i].Values) {
			return fmt.Errorf("%w: tensor %d has %d values vs %d", ErrShapeMismatch, i, len(p.Tensors[i].Values), len(other.Tensors[i].Values))
		}
	}

	return nil
}

// Equal compares round, shapes and values exactly.
func (p ParameterSet) Equal(other ParameterSet) bool {
	if p.Round != other.Round || len(p.Tensors) != len(other.Tensors) {
		return false
	}
	for i := range p.Tensors {
		if !slices.Equal(p.Tensors[i].Shape, other.Tensors[i].Shape) {
			return false
		}
		if !slices.Equal(p.Tensors[i].Values, other.Tensors[i].Values) {
			return false
		}
	}

	return true
}

type Metrics map[string]float64

func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// RoundConfig is the round-scoped configuration shipped with every fit and
// evaluate instruction.
type RoundConfig struct {
	Round       uint64         `json:"round"`
	Epochs      uint           `json:"epochs,omitempty"`
	BatchSize   uint           `json:"batch_size,omitempty"`
	Hyperparams map[string]any `json:"hyperparams,omitempty"`
}

type FitResult struct {
	Parameters ParameterSet `json:"parameters"`
	NumSamples uint64       `json:"num_samples"`
	Metrics    Metrics      `json:"metrics,omitempty"`
}

type EvaluateResult struct {
	Loss       float64 `json:"loss"`
	NumSamples uint64  `json:"num_samples"`
	Metrics    Metrics `json:"metrics,omitempty"`
}

// Trainer is the capability every participant exposes, whether it runs in
// process or behind an RPC channel.
type Trainer interface {
	GetParameters(ctx context.Context) (ParameterSet, error)
	Fit(ctx context.Context, params ParameterSet, cfg RoundConfig) (FitResult, error)
	Evaluate(ctx context.Context, params ParameterSet, cfg RoundConfig) (EvaluateResult, error)
}

// PhaseOutcome lists which clients took part in one phase of a round.
type PhaseOutcome struct {
	Selected []string `json:"selected"`
	Returned []string `json:"returned"`
	Failed   []string `json:"failed"`
	Required int      `json:"required"`
}

// RoundRecord is the audit entry for one published round.
type RoundRecord struct {
	Round      uint64        `json:"round"`
	Attempts   int           `json:"attempts"`
	Fit        PhaseOutcome  `json:"fit"`
	Evaluate   *PhaseOutcome `json:"evaluate,omitempty"`
	FitMetrics Metrics       `json:"fit_metrics,omitempty"`
	Loss       *float64      `json:"loss,omitempty"`
	Metrics    Metrics       `json:"metrics,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
}

type RoundPage struct {
	Offset uint64        `json:"offset"`
	Limit  uint64        `json:"limit"`
	Total  uint64        `json:"total"`
	Rounds []RoundRecord `json:"rounds"`
}
