package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/selection"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/registry"
	"github.com/google/uuid"
)

var errInvalidRounds = errors.New("number of rounds must be positive")

type service struct {
	cfg         Config
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	channels    Channels
	rounds      storage.RoundRepository
	params      storage.ParameterRepository
	pubsub      mqtt.PubSub
	topics      mqtt.Topics
	logger      *slog.Logger
	initial     *fl.ParameterSet

	mu     sync.RWMutex
	global *fl.ParameterSet

	runMu   sync.Mutex
	running bool
	runs    map[string]*RunInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*options)

type options struct {
	pubsub   mqtt.PubSub
	topics   mqtt.Topics
	observer coordinator.Observer
	initial  *fl.ParameterSet
}

// WithPubSub enables client announcements and round notifications.
func WithPubSub(pubsub mqtt.PubSub, topics mqtt.Topics) Option {
	return func(o *options) {
		o.pubsub = pubsub
		o.topics = topics
	}
}

func WithObserver(obs coordinator.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithInitialParameters seeds the first run instead of asking a client for
// its parameters.
func WithInitialParameters(p fl.ParameterSet) Option {
	return func(o *options) {
		o.initial = &p
	}
}

func NewService(cfg Config, reg *registry.Registry, channels Channels, repos *storage.Repositories, logger *slog.Logger, opts ...Option) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	fitPolicy, err := selection.New(cfg.SelectionPolicy, cfg.Seed)
	if err != nil {
		return nil, err
	}
	// Evaluate sampling uses its own random stream.
	evalPolicy, err := selection.New(cfg.SelectionPolicy, cfg.Seed+1)
	if err != nil {
		return nil, err
	}

	coordOpts := []coordinator.Option{coordinator.WithEvaluatePolicy(evalPolicy)}
	if o.observer != nil {
		coordOpts = append(coordOpts, coordinator.WithObserver(o.observer))
	}
	coord, err := coordinator.New(cfg.Coordinator(), reg, fitPolicy, logger, coordOpts...)
	if err != nil {
		return nil, err
	}

	if o.initial != nil {
		if err := o.initial.Validate(); err != nil {
			return nil, fmt.Errorf("initial parameters: %w", err)
		}
		initial := o.initial.Clone()
		o.initial = &initial
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &service{
		cfg:         cfg,
		registry:    reg,
		coordinator: coord,
		channels:    channels,
		rounds:      repos.Rounds,
		params:      repos.Parameters,
		pubsub:      o.pubsub,
		topics:      o.topics,
		logger:      logger,
		initial:     o.initial,
		runs:        make(map[string]*RunInfo),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func (svc *service) Run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig) ([]fl.RoundRecord, error) {
	if numRounds == 0 {
		return nil, errors.Join(pkgerrors.ErrInvalidData, errInvalidRounds)
	}
	if err := svc.begin(); err != nil {
		return nil, err
	}
	defer svc.end()

	return svc.run(ctx, numRounds, fit, eval, nil)
}

func (svc *service) StartRun(_ context.Context, req RunRequest) (RunInfo, error) {
	if req.Rounds == 0 {
		return RunInfo{}, errors.Join(pkgerrors.ErrInvalidData, errInvalidRounds)
	}
	if err := svc.begin(); err != nil {
		return RunInfo{}, err
	}

	info := &RunInfo{
		ID:        uuid.NewString(),
		State:     RunRunning,
		Rounds:    req.Rounds,
		StartedAt: time.Now().UTC(),
	}
	svc.runMu.Lock()
	svc.runs[info.ID] = info
	snapshot := *info
	svc.runMu.Unlock()

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		defer svc.end()

		progress := func(rec fl.RoundRecord) {
			svc.runMu.Lock()
			info.Completed++
			info.LastRound = rec.Round
			svc.runMu.Unlock()
		}
		_, err := svc.run(svc.ctx, req.Rounds, req.Fit, req.Evaluate, progress)

		svc.runMu.Lock()
		defer svc.runMu.Unlock()
		info.FinishedAt = time.Now().UTC()
		switch {
		case err == nil:
			info.State = RunCompleted
		case errors.Is(err, context.Canceled):
			info.State = RunCanceled
			info.Error = err.Error()
		default:
			info.State = RunFailed
			info.Error = err.Error()
		}
	}()

	return snapshot, nil
}

func (svc *service) GetRun(_ context.Context, runID string) (RunInfo, error) {
	svc.runMu.Lock()
	defer svc.runMu.Unlock()

	info, ok := svc.runs[runID]
	if !ok {
		return RunInfo{}, pkgerrors.ErrNotFound
	}

	return *info, nil
}

func (svc *service) begin() error {
	svc.runMu.Lock()
	defer svc.runMu.Unlock()

	if svc.running {
		return fl.ErrRunInProgress
	}
	svc.running = true

	return nil
}

func (svc *service) end() {
	svc.runMu.Lock()
	svc.running = false
	svc.runMu.Unlock()
}

func (svc *service) run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig, progress func(fl.RoundRecord)) ([]fl.RoundRecord, error) {
	if svc.registry.Len() == 0 {
		return nil, fl.ErrNoClientsRegistered
	}

	params, err := svc.initialParameters(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]fl.RoundRecord, 0, numRounds)
	for range numRounds {
		round := coordinator.Round{
			Number:     params.Round + 1,
			Parameters: params,
			Fit:        fit,
			Evaluate:   eval,
		}

		res, err := svc.runRound(ctx, round)
		if err != nil {
			return records, err
		}
		if err := svc.commit(ctx, res); err != nil {
			return records, err
		}

		records = append(records, res.Record)
		params = res.Parameters
		if progress != nil {
			progress(res.Record)
		}
	}

	return records, nil
}

// runRound retries a failed round with the same parameters while the
// failure is caused by client availability.
func (svc *service) runRound(ctx context.Context, r coordinator.Round) (coordinator.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := svc.coordinator.RunRound(ctx, r)
		if err == nil {
			res.Record.Attempts = attempt

			return res, nil
		}

		if ctx.Err() != nil {
			return coordinator.Result{}, &fl.RoundError{Round: r.Number, Attempts: attempt, Err: errors.Join(ctx.Err(), err)}
		}
		if !errors.Is(err, fl.ErrQuorumNotMet) && !errors.Is(err, fl.ErrInsufficientClients) {
			return coordinator.Result{}, &fl.RoundError{Round: r.Number, Attempts: attempt, Err: err}
		}
		if attempt > svc.cfg.RoundRetries {
			return coordinator.Result{}, &fl.RoundError{Round: r.Number, Attempts: attempt, Err: errors.Join(fl.ErrQuorumUnreachable, err)}
		}

		svc.logger.Warn("round failed, retrying",
			slog.Uint64("round", r.Number),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if svc.cfg.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				return coordinator.Result{}, &fl.RoundError{Round: r.Number, Attempts: attempt, Err: errors.Join(ctx.Err(), err)}
			case <-time.After(svc.cfg.RetryInterval):
			}
		}
	}
}

// commit persists a published round and then swaps the global parameters.
// The global snapshot only moves once both writes succeeded. A failed record
// write removes the saved version again so the round can be run anew.
func (svc *service) commit(ctx context.Context, res coordinator.Result) error {
	round := res.Record.Round
	if err := svc.params.Save(ctx, res.Parameters); err != nil {
		return fmt.Errorf("failed to save parameters of round %d: %w", round, err)
	}
	if err := svc.rounds.Create(ctx, res.Record); err != nil {
		err = fmt.Errorf("failed to save record of round %d: %w", round, err)
		if derr := svc.params.Delete(context.WithoutCancel(ctx), round); derr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back parameters of round %d: %w", round, derr))
		}
		svc.logger.Warn("round rolled back", slog.Uint64("round", round), slog.String("error", err.Error()))

		return err
	}

	published := res.Parameters.Clone()
	svc.mu.Lock()
	svc.global = &published
	svc.mu.Unlock()

	svc.logger.Info("round published",
		slog.Uint64("round", res.Record.Round),
		slog.Int("attempts", res.Record.Attempts),
		slog.Int("returned", len(res.Record.Fit.Returned)),
		slog.Int("failed", len(res.Record.Fit.Failed)),
		slog.String("duration", res.Record.Duration.String()),
	)
	svc.notify(ctx, res.Record)

	return nil
}

// initialParameters resolves the parameters the next round starts from: the
// in-memory global, the latest persisted version, the configured initial set
// or, failing all of those, the parameters of one available client.
func (svc *service) initialParameters(ctx context.Context) (fl.ParameterSet, error) {
	svc.mu.RLock()
	global := svc.global
	svc.mu.RUnlock()
	if global != nil {
		return global.Clone(), nil
	}

	latest, err := svc.params.Latest(ctx)
	switch {
	case err == nil:
		return svc.setGlobal(latest, "storage"), nil
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return fl.ParameterSet{}, fmt.Errorf("failed to load latest parameters: %w", err)
	}

	if svc.initial != nil {
		return svc.setGlobal(*svc.initial, "config"), nil
	}

	available := svc.registry.ListAvailable()
	if len(available) == 0 {
		return fl.ParameterSet{}, fmt.Errorf("%w: none available to provide initial parameters", fl.ErrInsufficientClients)
	}
	source := available[0]

	cctx, cancel := context.WithTimeout(ctx, svc.cfg.RoundTimeout)
	defer cancel()

	params, err := source.GetParameters(cctx)
	if err != nil {
		return fl.ParameterSet{}, fmt.Errorf("failed to get initial parameters from client %s: %w", source.ID, err)
	}
	if err := params.Validate(); err != nil {
		return fl.ParameterSet{}, fmt.Errorf("initial parameters from client %s: %w", source.ID, err)
	}
	params.Round = 0

	return svc.setGlobal(params, "client "+source.ID), nil
}

func (svc *service) setGlobal(p fl.ParameterSet, source string) fl.ParameterSet {
	stored := p.Clone()
	svc.mu.Lock()
	svc.global = &stored
	svc.mu.Unlock()

	svc.logger.Info("global parameters initialized",
		slog.Uint64("round", p.Round),
		slog.String("source", source),
		slog.Int("tensors", len(p.Tensors)),
	)

	return p.Clone()
}

func (svc *service) RegisterClient(_ context.Context, clientID string) (registry.Proxy, error) {
	return svc.registry.Register(clientID, svc.channels.Channel(clientID))
}

func (svc *service) ListClients(_ context.Context, offset, limit uint64) (registry.ProxyPage, error) {
	all := svc.registry.List()
	total := uint64(len(all))

	page := registry.ProxyPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Clients: []registry.Proxy{},
	}
	if offset < total {
		page.Clients = all[offset:min(offset+limit, total)]
	}

	return page, nil
}

func (svc *service) RemoveClient(_ context.Context, clientID string) error {
	return svc.registry.Remove(clientID)
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	records, total, err := svc.rounds.List(ctx, offset, limit)
	if err != nil {
		return fl.RoundPage{}, err
	}

	return fl.RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: records,
	}, nil
}

func (svc *service) GetRound(ctx context.Context, round uint64) (fl.RoundRecord, error) {
	return svc.rounds.Get(ctx, round)
}

func (svc *service) GetParameters(ctx context.Context, round uint64) (fl.ParameterSet, error) {
	return svc.params.Get(ctx, round)
}

func (svc *service) LatestParameters(ctx context.Context) (fl.ParameterSet, error) {
	svc.mu.RLock()
	global := svc.global
	svc.mu.RUnlock()
	if global != nil {
		return global.Clone(), nil
	}

	return svc.params.Latest(ctx)
}

// Shutdown cancels a background run and waits for it to stop.
func (svc *service) Shutdown(ctx context.Context) error {
	svc.cancel()

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if svc.pubsub != nil {
		for _, topic := range []string{svc.topics.Register(), svc.topics.Alive()} {
			if err := svc.pubsub.Unsubscribe(ctx, topic); err != nil {
				svc.logger.Warn("failed to unsubscribe", slog.String("topic", topic), slog.Any("error", err))
			}
		}
	}

	return nil
}
