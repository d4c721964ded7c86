package fl

import (
	"fmt"
	"math"
	"slices"
)

// WeightedParameters pairs a client's parameters with its sample count.
type WeightedParameters struct {
	Parameters ParameterSet
	Weight     uint64
}

type WeightedMetrics struct {
	Metrics Metrics
	Weight  uint64
}

type WeightedLoss struct {
	Loss   float64
	Weight uint64
}

// Strategy combines per-client results into one global result.
type Strategy interface {
	AggregateParameters(results []WeightedParameters) (ParameterSet, error)
	AggregateMetrics(results []WeightedMetrics) (Metrics, error)
	AggregateLoss(results []WeightedLoss) (float64, error)
}

type FedAvg struct{}

func NewFedAvg() Strategy {
	return &FedAvg{}
}

// AggregateParameters computes the sample-weighted mean of every tensor
// element. Each result contributes with coefficient w_i / Σw, so a single
// input comes back bit-for-bit unchanged.
func (f *FedAvg) AggregateParameters(results []WeightedParameters) (ParameterSet, error) {
	if len(results) == 0 {
		return ParameterSet{}, ErrEmptyResultSet
	}

	ref := results[0].Parameters
	var total float64
	for i, r := range results {
		if r.Weight == 0 {
			return ParameterSet{}, fmt.Errorf("result %d: %w", i, ErrInvalidWeight)
		}
		if err := ref.CompatibleWith(r.Parameters); err != nil {
			return ParameterSet{}, fmt.Errorf("result %d: %w", i, err)
		}
		total += float64(r.Weight)
	}

	coeffs := make([]float64, len(results))
	for i, r := range results {
		coeffs[i] = float64(r.Weight) / total
	}

	out := ParameterSet{
		Round:   ref.Round,
		Tensors: make([]Tensor, len(ref.Tensors)),
	}
	for ti, t := range ref.Tensors {
		values := make([]float64, len(t.Values))
		for vi := range values {
			var acc sum
			for ri, r := range results {
				acc.add(coeffs[ri] * r.Parameters.Tensors[ti].Values[vi])
			}
			values[vi] = acc.value()
		}
		out.Tensors[ti] = Tensor{
			Shape:  slices.Clone(t.Shape),
			Values: values,
		}
	}

	return out, nil
}

// AggregateMetrics averages each key over the clients that reported it.
// A client omitting a key does not dilute that key's mean.
func (f *FedAvg) AggregateMetrics(results []WeightedMetrics) (Metrics, error) {
	totals := make(map[string]float64)
	for i, r := range results {
		if r.Weight == 0 {
			return nil, fmt.Errorf("result %d: %w", i, ErrInvalidWeight)
		}
		for k := range r.Metrics {
			totals[k] += float64(r.Weight)
		}
	}

	sums := make(map[string]*sum, len(totals))
	for _, r := range results {
		for k, v := range r.Metrics {
			acc, ok := sums[k]
			if !ok {
				acc = &sum{}
				sums[k] = acc
			}
			acc.add(float64(r.Weight) / totals[k] * v)
		}
	}

	out := make(Metrics, len(sums))
	for k, acc := range sums {
		out[k] = acc.value()
	}

	return out, nil
}

func (f *FedAvg) AggregateLoss(results []WeightedLoss) (float64, error) {
	if len(results) == 0 {
		return 0, ErrEmptyResultSet
	}

	var total float64
	for i, r := range results {
		if r.Weight == 0 {
			return 0, fmt.Errorf("result %d: %w", i, ErrInvalidWeight)
		}
		total += float64(r.Weight)
	}

	var acc sum
	for _, r := range results {
		acc.add(float64(r.Weight) / total * r.Loss)
	}

	return acc.value(), nil
}

// sum is a Neumaier compensated accumulator. It keeps the result
// independent of input order to within the last ulp.
type sum struct {
	s, c float64
}

func (a *sum) add(x float64) {
	t := a.s + x
	if math.Abs(a.s) >= math.Abs(x) {
		a.c += (a.s - t) + x
	} else {
		a.c += (x - t) + a.s
	}
	a.s = t
}

func (a *sum) value() float64 {
	return a.s + a.c
}

