package trainer_test

import (
	"context"
	"math"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/partition"
	"github.com/absmach/fedcoord/pkg/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const features = 4

func newModel(t *testing.T, opts ...trainer.Option) *trainer.Model {
	t.Helper()

	data := trainer.Synthetic(600, features, 7)
	m, err := trainer.New(features, data[:500], data[500:], opts...)
	require.NoError(t, err)

	return m
}

func TestNew(t *testing.T) {
	cases := []struct {
		desc     string
		features int
		train    []trainer.Sample
		err      bool
	}{
		{desc: "valid", features: 2, train: []trainer.Sample{{Features: []float64{1, 2}}}},
		{desc: "no data", features: 2},
		{desc: "zero features", features: 0, err: true},
		{desc: "wrong sample width", features: 3, train: []trainer.Sample{{Features: []float64{1, 2}}}, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := trainer.New(tc.features, tc.train, nil)
			if tc.err {
				assert.Error(t, err)

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGetParameters(t *testing.T) {
	m := newModel(t)

	params, err := m.GetParameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]int{{features}, {1}}, params.Shapes())
	assert.Equal(t, make([]float64, features), params.Tensors[0].Values)
	assert.NoError(t, params.Validate())
}

func TestFitImprovesModel(t *testing.T) {
	ctx := context.Background()
	m := newModel(t, trainer.WithSeed(3))

	initial, err := m.GetParameters(ctx)
	require.NoError(t, err)
	before, err := m.Evaluate(ctx, initial, fl.RoundConfig{})
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, before.Loss, 1e-9)

	res, err := m.Fit(ctx, initial, fl.RoundConfig{Round: 1, Epochs: 10, BatchSize: 16})
	require.NoError(t, err)
	assert.Equal(t, uint64(500), res.NumSamples)
	assert.Contains(t, res.Metrics, "loss")
	assert.Equal(t, make([]float64, features), initial.Tensors[0].Values)

	after, err := m.Evaluate(ctx, res.Parameters, fl.RoundConfig{})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), after.NumSamples)
	assert.Less(t, after.Loss, before.Loss)
	assert.Greater(t, after.Metrics["accuracy"], 0.75)
}

func TestFitDeterministic(t *testing.T) {
	ctx := context.Background()
	cfg := fl.RoundConfig{Round: 2, Epochs: 3, BatchSize: 8}

	a := newModel(t, trainer.WithSeed(11))
	b := newModel(t, trainer.WithSeed(11))
	params, err := a.GetParameters(ctx)
	require.NoError(t, err)

	ra, err := a.Fit(ctx, params, cfg)
	require.NoError(t, err)
	rb, err := b.Fit(ctx, params, cfg)
	require.NoError(t, err)
	assert.True(t, ra.Parameters.Equal(rb.Parameters))
}

func TestFitErrors(t *testing.T) {
	m := newModel(t)
	good, err := m.GetParameters(context.Background())
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		desc   string
		ctx    context.Context
		params fl.ParameterSet
		err    error
	}{
		{
			desc: "shape mismatch",
			ctx:  context.Background(),
			params: fl.ParameterSet{Tensors: []fl.Tensor{
				{Shape: []int{features + 1}, Values: make([]float64, features+1)},
				{Shape: []int{1}, Values: []float64{0}},
			}},
			err: fl.ErrShapeMismatch,
		},
		{
			desc:   "invalid tensor",
			ctx:    context.Background(),
			params: fl.ParameterSet{},
			err:    fl.ErrInvalidTensor,
		},
		{
			desc:   "canceled context",
			ctx:    canceled,
			params: good,
			err:    context.Canceled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := m.Fit(tc.ctx, tc.params, fl.RoundConfig{Round: 1})
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestMissingData(t *testing.T) {
	m, err := trainer.New(features, nil, nil)
	require.NoError(t, err)
	params, err := m.GetParameters(context.Background())
	require.NoError(t, err)

	_, err = m.Fit(context.Background(), params, fl.RoundConfig{})
	assert.ErrorIs(t, err, trainer.ErrNoTrainingData)
	_, err = m.Evaluate(context.Background(), params, fl.RoundConfig{})
	assert.ErrorIs(t, err, trainer.ErrNoTestData)
}

func TestSyntheticShards(t *testing.T) {
	data := trainer.Synthetic(1000, features, 1)
	assert.Equal(t, data, trainer.Synthetic(1000, features, 1))

	first, err := partition.NonIID(data, trainer.SampleLabel, 1, 2)
	require.NoError(t, err)
	second, err := partition.NonIID(data, trainer.SampleLabel, 2, 2)
	require.NoError(t, err)

	assert.Len(t, first, 500)
	assert.Len(t, second, 500)
	assert.LessOrEqual(t, first[len(first)-1].Label, second[0].Label)
}
