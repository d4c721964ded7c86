package coordinator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/channel"
	"github.com/absmach/fedcoord/pkg/fl"
	flmocks "github.com/absmach/fedcoord/pkg/fl/mocks"
	"github.com/absmach/fedcoord/pkg/selection"
	"github.com/absmach/fedcoord/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func vector(values ...float64) fl.ParameterSet {
	return fl.ParameterSet{Tensors: []fl.Tensor{{Shape: []int{len(values)}, Values: values}}}
}

func fitReturns(params fl.ParameterSet, samples uint64, metrics fl.Metrics) *flmocks.Trainer {
	tr := new(flmocks.Trainer)
	tr.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Return(fl.FitResult{Parameters: params, NumSamples: samples, Metrics: metrics}, nil)

	return tr
}

func unresponsive() *flmocks.Trainer {
	tr := new(flmocks.Trainer)
	tr.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Run(flmocks.BlockUntilDone).
		Return(fl.FitResult{}, context.DeadlineExceeded)
	tr.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).
		Run(flmocks.BlockUntilDone).
		Return(fl.EvaluateResult{}, context.DeadlineExceeded)

	return tr
}

func newRegistry(t *testing.T, trainers map[string]fl.Trainer, opts ...registry.Option) *registry.Registry {
	t.Helper()

	reg := registry.New(opts...)
	for id, tr := range trainers {
		_, err := reg.Register(id, channel.NewLocal(tr))
		require.NoError(t, err)
	}

	return reg
}

func fitOnly(minResults int) coordinator.Config {
	return coordinator.Config{
		Fit:          coordinator.PhaseConfig{Fraction: 1, MinClients: 1, MinResults: minResults},
		RoundTimeout: 50 * time.Millisecond,
	}
}

func TestRunRoundPublishesDespiteTimeout(t *testing.T) {
	reg := newRegistry(t, map[string]fl.Trainer{
		"a": fitReturns(vector(1, 2), 10, fl.Metrics{"accuracy": 0.9}),
		"b": fitReturns(vector(4, 8), 5, nil),
		"c": unresponsive(),
	})
	c, err := coordinator.New(fitOnly(2), reg, selection.NewRandom(1), logger)
	require.NoError(t, err)

	global := vector(0, 0)
	res, err := c.RunRound(context.Background(), coordinator.Round{Number: 1, Parameters: global})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), res.Parameters.Round)
	assert.InDeltaSlice(t, []float64{2, 4}, res.Parameters.Tensors[0].Values, 1e-12)
	assert.Equal(t, []string{"a", "b", "c"}, res.Record.Fit.Selected)
	assert.Equal(t, []string{"a", "b"}, res.Record.Fit.Returned)
	assert.Equal(t, []string{"c"}, res.Record.Fit.Failed)
	assert.Equal(t, 2, res.Record.Fit.Required)
	assert.Equal(t, 0.9, res.Record.FitMetrics["accuracy"])
	assert.Nil(t, res.Record.Evaluate)
	assert.Equal(t, coordinator.Idle, c.State())

	p, err := reg.Get("c")
	require.NoError(t, err)
	assert.Equal(t, registry.Unreachable, p.State)
	assert.Equal(t, 1, p.Failures)

	p, err = reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, registry.Available, p.State)
	assert.Equal(t, uint64(10), p.NumSamples)
}

func TestRunRoundQuorumNotMet(t *testing.T) {
	reg := newRegistry(t, map[string]fl.Trainer{
		"a": fitReturns(vector(9, 9), 10, nil),
		"b": unresponsive(),
		"c": unresponsive(),
	})
	c, err := coordinator.New(fitOnly(2), reg, selection.NewRandom(1), logger)
	require.NoError(t, err)

	global := vector(0.1, 0.2)
	before := global.Clone()

	res, err := c.RunRound(context.Background(), coordinator.Round{Number: 1, Parameters: global})
	assert.ErrorIs(t, err, fl.ErrQuorumNotMet)
	assert.Empty(t, res.Parameters.Tensors)
	assert.True(t, before.Equal(global), "global parameters must be untouched")
	assert.Equal(t, []string{"a"}, res.Record.Fit.Returned)
	assert.Equal(t, []string{"b", "c"}, res.Record.Fit.Failed)
}

func TestRunRoundFailures(t *testing.T) {
	cases := []struct {
		desc     string
		cfg      coordinator.Config
		trainers map[string]fl.Trainer
		err      error
	}{
		{
			desc: "not enough clients to start",
			cfg: coordinator.Config{
				Fit:          coordinator.PhaseConfig{Fraction: 1, MinClients: 1},
				MinAvailable: 3,
				RoundTimeout: time.Second,
			},
			trainers: map[string]fl.Trainer{"a": fitReturns(vector(1), 1, nil)},
			err:      fl.ErrInsufficientClients,
		},
		{
			desc: "fewer clients than the fit minimum",
			cfg: coordinator.Config{
				Fit:          coordinator.PhaseConfig{Fraction: 0.5, MinClients: 2},
				RoundTimeout: time.Second,
			},
			trainers: map[string]fl.Trainer{"a": fitReturns(vector(1), 1, nil)},
			err:      fl.ErrInsufficientClients,
		},
		{
			desc: "shape mismatch is fatal",
			cfg:  fitOnly(1),
			trainers: map[string]fl.Trainer{
				"a": fitReturns(vector(1), 1, nil),
				"b": fitReturns(vector(1, 2, 3), 1, nil),
			},
			err: fl.ErrShapeMismatch,
		},
		{
			desc: "zero sample results do not count",
			cfg:  fitOnly(2),
			trainers: map[string]fl.Trainer{
				"a": fitReturns(vector(1), 4, nil),
				"b": fitReturns(vector(3), 0, nil),
			},
			err: fl.ErrQuorumNotMet,
		},
		{
			desc: "client error",
			cfg:  fitOnly(1),
			trainers: map[string]fl.Trainer{
				"a": func() fl.Trainer {
					tr := new(flmocks.Trainer)
					tr.On("Fit", mock.Anything, mock.Anything, mock.Anything).Return(fl.FitResult{}, errors.New("disk full"))

					return tr
				}(),
			},
			err: fl.ErrQuorumNotMet,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			reg := newRegistry(t, tc.trainers)
			c, err := coordinator.New(tc.cfg, reg, selection.NewRandom(1), logger)
			require.NoError(t, err)

			res, err := c.RunRound(context.Background(), coordinator.Round{Number: 3, Parameters: vector(0)})
			assert.ErrorIs(t, err, tc.err)
			assert.Empty(t, res.Parameters.Tensors)

			for _, p := range reg.List() {
				assert.NotEqual(t, registry.Busy, p.State, "%s left busy", p.ID)
			}
		})
	}
}

func TestRunRoundEvaluatesNewParameters(t *testing.T) {
	var (
		mu        sync.Mutex
		evaluated []fl.ParameterSet
	)
	evaluator := func(loss float64, samples uint64) *flmocks.Trainer {
		tr := fitReturns(vector(2), 1, nil)
		tr.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				mu.Lock()
				evaluated = append(evaluated, args.Get(1).(fl.ParameterSet))
				mu.Unlock()
			}).
			Return(fl.EvaluateResult{Loss: loss, NumSamples: samples, Metrics: fl.Metrics{"accuracy": loss / 10}}, nil)

		return tr
	}

	reg := newRegistry(t, map[string]fl.Trainer{
		"a": evaluator(1, 1),
		"b": evaluator(4, 3),
	})
	cfg := coordinator.Config{
		Fit:          coordinator.PhaseConfig{Fraction: 1, MinClients: 2},
		Evaluate:     coordinator.PhaseConfig{Fraction: 1, MinClients: 2},
		RoundTimeout: time.Second,
	}
	c, err := coordinator.New(cfg, reg, selection.NewRoundRobin(), logger)
	require.NoError(t, err)

	res, err := c.RunRound(context.Background(), coordinator.Round{
		Number:     5,
		Parameters: vector(0),
		Evaluate:   fl.RoundConfig{BatchSize: 16},
	})
	require.NoError(t, err)

	require.NotNil(t, res.Record.Evaluate)
	assert.Equal(t, []string{"a", "b"}, res.Record.Evaluate.Returned)
	require.NotNil(t, res.Record.Loss)
	assert.InDelta(t, 3.25, *res.Record.Loss, 1e-12)
	assert.InDelta(t, 0.325, res.Record.Metrics["accuracy"], 1e-12)

	require.Len(t, evaluated, 2)
	for _, p := range evaluated {
		assert.Equal(t, uint64(5), p.Round)
		assert.Equal(t, []float64{2}, p.Tensors[0].Values)
	}
}

func TestRunRoundEvictsExhaustedClients(t *testing.T) {
	reg := newRegistry(t, map[string]fl.Trainer{
		"a": fitReturns(vector(1), 1, nil),
		"b": unresponsive(),
	}, registry.WithEvictionThreshold(1))
	c, err := coordinator.New(fitOnly(1), reg, selection.NewRandom(1), logger)
	require.NoError(t, err)

	_, err = c.RunRound(context.Background(), coordinator.Round{Number: 1, Parameters: vector(0)})
	require.NoError(t, err)

	p, err := reg.Get("b")
	require.NoError(t, err, "one failure does not exceed the threshold")
	assert.Equal(t, 1, p.Failures)

	require.NoError(t, reg.Heartbeat("b"))
	_, err = c.RunRound(context.Background(), coordinator.Round{Number: 2, Parameters: vector(0)})
	require.NoError(t, err)

	_, err = reg.Get("b")
	assert.ErrorIs(t, err, fl.ErrClientNotFound)
	assert.Equal(t, 1, reg.Len())
}

func TestRunRoundDeterministic(t *testing.T) {
	run := func() fl.ParameterSet {
		reg := newRegistry(t, map[string]fl.Trainer{
			"a": fitReturns(vector(0.1, 0.7), 3, nil),
			"b": fitReturns(vector(0.2, 0.3), 7, nil),
			"c": fitReturns(vector(0.3, 0.9), 11, nil),
		})
		c, err := coordinator.New(fitOnly(3), reg, selection.NewRandom(9), logger)
		require.NoError(t, err)

		res, err := c.RunRound(context.Background(), coordinator.Round{Number: 1, Parameters: vector(0, 0)})
		require.NoError(t, err)

		return res.Parameters
	}

	first := run()
	for range 5 {
		assert.True(t, first.Equal(run()))
	}
}

type recorder struct {
	mu      sync.Mutex
	states  []coordinator.State
	results map[coordinator.Phase]int
}

func (r *recorder) StateChanged(_ uint64, _, to coordinator.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) ClientResult(_ uint64, phase coordinator.Phase, _ string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[phase]++
}

func (r *recorder) RoundFinished(uint64, time.Duration, error) {}

func TestObserverSeesStateMachine(t *testing.T) {
	rec := &recorder{results: make(map[coordinator.Phase]int)}
	reg := newRegistry(t, map[string]fl.Trainer{"a": fitReturns(vector(1), 1, nil)})
	c, err := coordinator.New(fitOnly(1), reg, selection.NewRandom(1), logger, coordinator.WithObserver(rec))
	require.NoError(t, err)

	_, err = c.RunRound(context.Background(), coordinator.Round{Number: 1, Parameters: vector(0)})
	require.NoError(t, err)

	assert.Equal(t, []coordinator.State{
		coordinator.Selecting,
		coordinator.DispatchingFit,
		coordinator.CollectingFit,
		coordinator.AggregatingFit,
		coordinator.Published,
		coordinator.Idle,
	}, rec.states)
	assert.Equal(t, 1, rec.results[coordinator.PhaseFit])
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := coordinator.NewPrometheusObserver("fedcoord", reg)
	require.NoError(t, err)

	obs.StateChanged(1, coordinator.Idle, coordinator.Selecting)
	obs.ClientResult(1, coordinator.PhaseFit, "a", nil)
	obs.RoundFinished(1, time.Second, errors.New("quorum"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)

	_, err = coordinator.NewPrometheusObserver("fedcoord", reg)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestRequired(t *testing.T) {
	cases := []struct {
		desc     string
		cfg      coordinator.PhaseConfig
		selected int
		want     int
	}{
		{desc: "min results", cfg: coordinator.PhaseConfig{MinClients: 3, MinResults: 2}, selected: 3, want: 2},
		{desc: "falls back to min clients", cfg: coordinator.PhaseConfig{MinClients: 3}, selected: 5, want: 3},
		{desc: "ratio raises requirement", cfg: coordinator.PhaseConfig{MinResults: 1, QuorumRatio: 0.8}, selected: 10, want: 8},
		{desc: "floor of one", cfg: coordinator.PhaseConfig{}, selected: 4, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.Required(tc.selected))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		desc string
		cfg  coordinator.Config
		ok   bool
	}{
		{desc: "valid", cfg: fitOnly(1), ok: true},
		{desc: "fit disabled", cfg: coordinator.Config{RoundTimeout: time.Second}},
		{desc: "bad fraction", cfg: coordinator.Config{Fit: coordinator.PhaseConfig{Fraction: 2}, RoundTimeout: time.Second}},
		{desc: "no timeout", cfg: coordinator.Config{Fit: coordinator.PhaseConfig{Fraction: 1}}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)

				return
			}
			assert.Error(t, err)
		})
	}
}

type slowTrainer struct {
	delay  time.Duration
	params fl.ParameterSet
}

func (s slowTrainer) GetParameters(context.Context) (fl.ParameterSet, error) {
	return s.params, nil
}

func (s slowTrainer) Fit(ctx context.Context, _ fl.ParameterSet, _ fl.RoundConfig) (fl.FitResult, error) {
	select {
	case <-ctx.Done():
		return fl.FitResult{}, ctx.Err()
	case <-time.After(s.delay):
		return fl.FitResult{Parameters: s.params, NumSamples: 1}, nil
	}
}

func (s slowTrainer) Evaluate(ctx context.Context, _ fl.ParameterSet, _ fl.RoundConfig) (fl.EvaluateResult, error) {
	return fl.EvaluateResult{NumSamples: 1}, nil
}

func TestRunRoundAbortSparesOtherClients(t *testing.T) {
	cfg := coordinator.Config{
		Fit:          coordinator.PhaseConfig{Fraction: 1, MinClients: 1},
		RoundTimeout: time.Second,
	}

	cases := []struct {
		desc     string
		trainers map[string]fl.Trainer
		err      error
		culprit  string
	}{
		{
			desc: "shape mismatch cancels outstanding calls",
			trainers: map[string]fl.Trainer{
				"a": fitReturns(vector(1, 2, 3), 1, nil),
				"b": slowTrainer{delay: 200 * time.Millisecond, params: vector(1, 2)},
			},
			err:     fl.ErrShapeMismatch,
			culprit: "a",
		},
		{
			desc: "caller cancels the round",
			trainers: map[string]fl.Trainer{
				"b": slowTrainer{delay: 500 * time.Millisecond, params: vector(1, 2)},
			},
			err: fl.ErrQuorumNotMet,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			reg := newRegistry(t, tc.trainers, registry.WithEvictionThreshold(1))
			c, err := coordinator.New(cfg, reg, selection.NewRandom(1), logger)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.culprit == "" {
				go func() {
					time.Sleep(20 * time.Millisecond)
					cancel()
				}()
			}

			_, err = c.RunRound(ctx, coordinator.Round{Number: 1, Parameters: vector(0, 0)})
			assert.ErrorIs(t, err, tc.err)

			p, err := reg.Get("b")
			require.NoError(t, err)
			assert.Equal(t, registry.Available, p.State)
			assert.Equal(t, 0, p.Failures)
			assert.Empty(t, p.LastError)

			if tc.culprit != "" {
				p, err := reg.Get(tc.culprit)
				require.NoError(t, err)
				assert.Equal(t, registry.Unreachable, p.State)
				assert.Equal(t, 1, p.Failures)
			}
		})
	}
}
