package manager_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/channel"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	flmocks "github.com/absmach/fedcoord/pkg/fl/mocks"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func vector(values ...float64) fl.ParameterSet {
	return fl.ParameterSet{Tensors: []fl.Tensor{{Shape: []int{len(values)}, Values: values}}}
}

// adder trains by adding delta to every parameter.
type adder struct {
	delta   float64
	samples uint64
	initial fl.ParameterSet
}

func (a adder) GetParameters(context.Context) (fl.ParameterSet, error) {
	return a.initial.Clone(), nil
}

func (a adder) Fit(_ context.Context, params fl.ParameterSet, _ fl.RoundConfig) (fl.FitResult, error) {
	out := params.Clone()
	for i := range out.Tensors {
		for j := range out.Tensors[i].Values {
			out.Tensors[i].Values[j] += a.delta
		}
	}

	return fl.FitResult{Parameters: out, NumSamples: a.samples, Metrics: fl.Metrics{"delta": a.delta}}, nil
}

func (a adder) Evaluate(_ context.Context, params fl.ParameterSet, _ fl.RoundConfig) (fl.EvaluateResult, error) {
	return fl.EvaluateResult{Loss: math.Abs(params.Tensors[0].Values[0]), NumSamples: a.samples}, nil
}

func unresponsive() *flmocks.Trainer {
	tr := new(flmocks.Trainer)
	tr.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Run(flmocks.BlockUntilDone).
		Return(fl.FitResult{}, context.DeadlineExceeded)

	return tr
}

func testConfig() manager.Config {
	return manager.Config{
		FitFraction:         1,
		MinFitClients:       1,
		MinAvailableClients: 1,
		RoundTimeout:        100 * time.Millisecond,
		RoundRetries:        0,
		SelectionPolicy:     "random",
		Seed:                1,
	}
}

func localChannels(trainers map[string]fl.Trainer) manager.Channels {
	return manager.ChannelsFunc(func(id string) fl.Trainer {
		tr, ok := trainers[id]
		if !ok {
			return nil
		}

		return channel.NewLocal(tr)
	})
}

type fixture struct {
	svc      manager.Service
	registry *registry.Registry
	repos    *storage.Repositories
}

func newService(t *testing.T, cfg manager.Config, trainers map[string]fl.Trainer, opts ...manager.Option) fixture {
	t.Helper()

	return newServiceWithRepos(t, cfg, trainers, &storage.Repositories{
		Rounds:     storage.NewMemoryRoundRepository(),
		Parameters: storage.NewMemoryParameterRepository(),
	}, opts...)
}

func newServiceWithRepos(t *testing.T, cfg manager.Config, trainers map[string]fl.Trainer, repos *storage.Repositories, opts ...manager.Option) fixture {
	t.Helper()

	reg := registry.New(registry.WithEvictionThreshold(cfg.EvictionThreshold))
	svc, err := manager.NewService(cfg, reg, localChannels(trainers), repos, logger, opts...)
	require.NoError(t, err)
	for id := range trainers {
		_, err := svc.RegisterClient(context.Background(), id)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		_ = svc.Shutdown(context.Background())
	})

	return fixture{svc: svc, registry: reg, repos: repos}
}

func TestRunPublishesEveryRound(t *testing.T) {
	f := newService(t, testConfig(), map[string]fl.Trainer{
		"a": adder{delta: 1, samples: 10},
		"b": adder{delta: 2, samples: 10},
		"c": adder{delta: 3, samples: 10},
	}, manager.WithInitialParameters(vector(0, 0)))
	ctx := context.Background()

	records, err := f.svc.Run(ctx, 3, fl.RoundConfig{Epochs: 1}, fl.RoundConfig{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Round)
		assert.Equal(t, 1, rec.Attempts)
		assert.Equal(t, []string{"a", "b", "c"}, rec.Fit.Returned)
	}

	versions, err := f.repos.Parameters.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, versions)

	page, err := f.svc.ListRounds(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)

	latest, err := f.svc.LatestParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.Round)
	assert.InDeltaSlice(t, []float64{6, 6}, latest.Tensors[0].Values, 1e-12)

	second, err := f.svc.GetParameters(ctx, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 4}, second.Tensors[0].Values, 1e-12)

	rec, err := f.svc.GetRound(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rec.FitMetrics["delta"], 1e-12)
}

func TestRunWithEvaluation(t *testing.T) {
	cfg := testConfig()
	cfg.EvaluateFraction = 1
	cfg.MinEvaluateClients = 1

	f := newService(t, cfg, map[string]fl.Trainer{
		"a": adder{delta: 1, samples: 1},
		"b": adder{delta: 1, samples: 3},
	}, manager.WithInitialParameters(vector(-3)))

	records, err := f.svc.Run(context.Background(), 1, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Evaluate)
	require.NotNil(t, records[0].Loss)
	assert.InDelta(t, 2.0, *records[0].Loss, 1e-12)
}

func TestRunNoClientsRegistered(t *testing.T) {
	f := newService(t, testConfig(), nil, manager.WithInitialParameters(vector(0)))

	_, err := f.svc.Run(context.Background(), 1, fl.RoundConfig{}, fl.RoundConfig{})
	assert.ErrorIs(t, err, fl.ErrNoClientsRegistered)
}

func TestRunInvalidRounds(t *testing.T) {
	f := newService(t, testConfig(), map[string]fl.Trainer{"a": adder{delta: 1, samples: 1}})

	_, err := f.svc.Run(context.Background(), 0, fl.RoundConfig{}, fl.RoundConfig{})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)

	_, err = f.svc.StartRun(context.Background(), manager.RunRequest{})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
}

func TestQuorumFailureLeavesGlobalUntouched(t *testing.T) {
	cfg := testConfig()
	cfg.MinFitResults = 3
	cfg.RoundRetries = 1

	flaky := new(flmocks.Trainer)
	flaky.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Return(fl.FitResult{Parameters: vector(0.3, 0.7), NumSamples: 7}, nil).Once()
	flaky.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Run(flmocks.BlockUntilDone).
		Return(fl.FitResult{}, context.DeadlineExceeded)

	f := newService(t, cfg, map[string]fl.Trainer{
		"a": adder{delta: 0.1, samples: 3},
		"b": adder{delta: 0.2, samples: 5},
		"c": flaky,
	}, manager.WithInitialParameters(vector(1.5, -2.25)))
	ctx := context.Background()

	_, err := f.svc.Run(ctx, 1, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)

	before, err := f.svc.LatestParameters(ctx)
	require.NoError(t, err)

	records, err := f.svc.Run(ctx, 1, fl.RoundConfig{}, fl.RoundConfig{})
	assert.Empty(t, records)
	assert.ErrorIs(t, err, fl.ErrQuorumUnreachable)
	assert.ErrorIs(t, err, fl.ErrQuorumNotMet)

	var roundErr *fl.RoundError
	require.ErrorAs(t, err, &roundErr)
	assert.Equal(t, uint64(2), roundErr.Round)
	assert.Equal(t, 2, roundErr.Attempts)

	after, err := f.svc.LatestParameters(ctx)
	require.NoError(t, err)
	require.Len(t, after.Tensors, len(before.Tensors))
	for i := range before.Tensors {
		for j, v := range before.Tensors[i].Values {
			assert.Equal(t, math.Float64bits(v), math.Float64bits(after.Tensors[i].Values[j]))
		}
	}

	_, err = f.svc.GetRound(ctx, 2)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	_, err = f.svc.GetParameters(ctx, 2)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestRunPersistsPartialParticipation(t *testing.T) {
	cfg := testConfig()
	cfg.MinFitResults = 2

	f := newService(t, cfg, map[string]fl.Trainer{
		"a": adder{delta: 1, samples: 1},
		"b": adder{delta: 3, samples: 1},
		"c": unresponsive(),
	}, manager.WithInitialParameters(vector(0)))
	ctx := context.Background()

	records, err := f.svc.Run(ctx, 1, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec, err := f.repos.Rounds.Get(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, rec.Fit.Selected)
	assert.ElementsMatch(t, []string{"a", "b"}, rec.Fit.Returned)
	assert.Equal(t, []string{"c"}, rec.Fit.Failed)
	assert.Equal(t, 2, rec.Fit.Required)

	latest, err := f.svc.LatestParameters(ctx)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2}, latest.Tensors[0].Values, 1e-12)
}

var errDiskFull = errors.New("disk full")

// failingRounds rejects record writes while fails is positive.
type failingRounds struct {
	storage.RoundRepository
	mu    sync.Mutex
	fails int
}

func (r *failingRounds) Create(ctx context.Context, rec fl.RoundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--

		return errDiskFull
	}

	return r.RoundRepository.Create(ctx, rec)
}

func TestRunRollsBackUnrecordedRound(t *testing.T) {
	cases := []struct {
		desc     string
		fails    int
		err      error
		versions []uint64
	}{
		{desc: "record write fails", fails: 1, err: errDiskFull, versions: []uint64{}},
		{desc: "record write succeeds on rerun", versions: []uint64{1}},
	}

	repos := &storage.Repositories{
		Rounds:     &failingRounds{RoundRepository: storage.NewMemoryRoundRepository()},
		Parameters: storage.NewMemoryParameterRepository(),
	}
	f := newServiceWithRepos(t, testConfig(), map[string]fl.Trainer{"a": adder{delta: 1, samples: 1}}, repos, manager.WithInitialParameters(vector(0)))
	ctx := context.Background()

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			rounds := repos.Rounds.(*failingRounds)
			rounds.mu.Lock()
			rounds.fails = tc.fails
			rounds.mu.Unlock()

			records, err := f.svc.Run(ctx, 1, fl.RoundConfig{}, fl.RoundConfig{})
			versions, verr := repos.Parameters.Versions(ctx)
			require.NoError(t, verr)
			assert.Equal(t, tc.versions, versions)

			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Empty(t, records)
				latest, err := f.svc.LatestParameters(ctx)
				require.NoError(t, err)
				assert.Zero(t, latest.Round)

				return
			}
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, uint64(1), records[0].Round)

			rec, err := repos.Rounds.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), rec.Round)
		})
	}
}

func TestShapeMismatchIsNotRetried(t *testing.T) {
	cfg := testConfig()
	cfg.RoundRetries = 3

	bad := new(flmocks.Trainer)
	bad.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Return(fl.FitResult{Parameters: vector(1, 2, 3), NumSamples: 1}, nil)

	f := newService(t, cfg, map[string]fl.Trainer{"a": bad}, manager.WithInitialParameters(vector(0, 0)))

	_, err := f.svc.Run(context.Background(), 1, fl.RoundConfig{}, fl.RoundConfig{})
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)

	var roundErr *fl.RoundError
	require.ErrorAs(t, err, &roundErr)
	assert.Equal(t, 1, roundErr.Attempts)
	bad.AssertNumberOfCalls(t, "Fit", 1)
}

// heartbeatOnFailure brings a client back after each failed round, as a
// heartbeat arriving between retries would.
type heartbeatOnFailure struct {
	reg *registry.Registry
	id  string
}

func (h heartbeatOnFailure) StateChanged(uint64, coordinator.State, coordinator.State) {}
func (h heartbeatOnFailure) ClientResult(uint64, coordinator.Phase, string, error)     {}
func (h heartbeatOnFailure) RoundFinished(_ uint64, _ time.Duration, err error) {
	if err != nil {
		_ = h.reg.Heartbeat(h.id)
	}
}

func TestRunRetriesUntilClientsReturn(t *testing.T) {
	cfg := testConfig()
	cfg.MinAvailableClients = 3
	cfg.RoundRetries = 2

	reg := registry.New()
	trainers := map[string]fl.Trainer{
		"a": adder{delta: 1, samples: 1},
		"b": adder{delta: 1, samples: 1},
		"c": adder{delta: 1, samples: 1},
	}
	svc, err := manager.NewService(cfg, reg, localChannels(trainers), &storage.Repositories{
		Rounds:     storage.NewMemoryRoundRepository(),
		Parameters: storage.NewMemoryParameterRepository(),
	}, logger,
		manager.WithInitialParameters(vector(0)),
		manager.WithObserver(heartbeatOnFailure{reg: reg, id: "c"}),
	)
	require.NoError(t, err)
	for id := range trainers {
		_, err := svc.RegisterClient(context.Background(), id)
		require.NoError(t, err)
	}
	require.NoError(t, reg.Disconnect("c"))

	records, err := svc.Run(context.Background(), 1, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Attempts)
	assert.Equal(t, []string{"a", "b", "c"}, records[0].Fit.Selected)
}

func TestInitialParametersFromClient(t *testing.T) {
	f := newService(t, testConfig(), map[string]fl.Trainer{
		"a": adder{delta: 1, samples: 1, initial: vector(5, 5)},
		"b": adder{delta: 1, samples: 1, initial: vector(9, 9)},
	})

	records, err := f.svc.Run(context.Background(), 1, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	latest, err := f.svc.LatestParameters(context.Background())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{6, 6}, latest.Tensors[0].Values, 1e-12)
}

func TestRunResumesFromStorage(t *testing.T) {
	repos := &storage.Repositories{
		Rounds:     storage.NewMemoryRoundRepository(),
		Parameters: storage.NewMemoryParameterRepository(),
	}
	trainers := map[string]fl.Trainer{"a": adder{delta: 1, samples: 1}}
	ctx := context.Background()

	first := newServiceWithRepos(t, testConfig(), trainers, repos, manager.WithInitialParameters(vector(0)))
	_, err := first.svc.Run(ctx, 2, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)

	second := newServiceWithRepos(t, testConfig(), trainers, repos, manager.WithInitialParameters(vector(100)))
	records, err := second.svc.Run(ctx, 1, fl.RoundConfig{}, fl.RoundConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(3), records[0].Round)

	latest, err := second.svc.LatestParameters(ctx)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3}, latest.Tensors[0].Values, 1e-12)
}

func TestStartRunAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.RoundTimeout = time.Minute

	f := newService(t, cfg, map[string]fl.Trainer{"a": unresponsive()}, manager.WithInitialParameters(vector(0)))
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, manager.RunRequest{Rounds: 2})
	require.NoError(t, err)
	assert.Equal(t, manager.RunRunning, run.State)
	assert.Equal(t, uint64(2), run.Rounds)

	_, err = f.svc.Run(ctx, 1, fl.RoundConfig{}, fl.RoundConfig{})
	assert.ErrorIs(t, err, fl.ErrRunInProgress)
	_, err = f.svc.StartRun(ctx, manager.RunRequest{Rounds: 1})
	assert.ErrorIs(t, err, fl.ErrRunInProgress)

	require.NoError(t, f.svc.Shutdown(ctx))

	got, err := f.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, manager.RunCanceled, got.State)
	assert.Zero(t, got.Completed)
	assert.NotEmpty(t, got.Error)
	assert.False(t, got.FinishedAt.IsZero())

	_, err = f.svc.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestStartRunCompletes(t *testing.T) {
	f := newService(t, testConfig(), map[string]fl.Trainer{"a": adder{delta: 1, samples: 1}}, manager.WithInitialParameters(vector(0)))
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, manager.RunRequest{Rounds: 2})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := f.svc.GetRun(ctx, run.ID)

		return err == nil && got.State == manager.RunCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Completed)
	assert.Equal(t, uint64(2), got.LastRound)
}

func TestClients(t *testing.T) {
	f := newService(t, testConfig(), map[string]fl.Trainer{
		"c": adder{}, "a": adder{}, "d": adder{}, "b": adder{},
	})
	ctx := context.Background()

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		ids    []string
	}{
		{desc: "first page", offset: 0, limit: 2, ids: []string{"a", "b"}},
		{desc: "second page", offset: 2, limit: 2, ids: []string{"c", "d"}},
		{desc: "past the end", offset: 8, limit: 2, ids: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			page, err := f.svc.ListClients(ctx, tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(4), page.Total)

			ids := make([]string, len(page.Clients))
			for i, p := range page.Clients {
				ids[i] = p.ID
			}
			assert.Equal(t, tc.ids, ids)
		})
	}

	require.NoError(t, f.svc.RemoveClient(ctx, "b"))
	assert.ErrorIs(t, f.svc.RemoveClient(ctx, "b"), fl.ErrClientNotFound)
	assert.Equal(t, 3, f.registry.Len())

	_, err := f.svc.RegisterClient(ctx, "")
	assert.ErrorIs(t, err, fl.ErrEmptyClientID)
}

func TestConcurrentReadsDuringRun(t *testing.T) {
	f := newService(t, testConfig(), map[string]fl.Trainer{
		"a": adder{delta: 1, samples: 1},
		"b": adder{delta: 1, samples: 1},
	}, manager.WithInitialParameters(vector(0, 0, 0)))
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			p, err := f.svc.LatestParameters(ctx)
			if err != nil {
				continue
			}
			first := p.Tensors[0].Values[0]
			for _, v := range p.Tensors[0].Values {
				assert.Equal(t, first, v, "reader saw a partially updated snapshot")
			}
		}
	}()

	_, err := f.svc.Run(ctx, 5, fl.RoundConfig{}, fl.RoundConfig{})
	close(stop)
	wg.Wait()
	require.NoError(t, err)
}
