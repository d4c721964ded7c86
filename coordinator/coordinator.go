package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/selection"
	"github.com/absmach/fedcoord/registry"
	"golang.org/x/sync/errgroup"
)

// Round is the input of a single round: the current global parameters and
// the per-phase configuration shipped to clients.
type Round struct {
	Number     uint64
	Parameters fl.ParameterSet
	Fit        fl.RoundConfig
	Evaluate   fl.RoundConfig
}

// Result carries the new global parameters of a published round. On failure
// only Record is populated.
type Result struct {
	Parameters fl.ParameterSet
	Record     fl.RoundRecord
}

type Coordinator struct {
	cfg        Config
	registry   *registry.Registry
	fitPolicy  selection.Policy
	evalPolicy selection.Policy
	strategy   fl.Strategy
	observer   Observer
	logger     *slog.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Coordinator)

func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithEvaluatePolicy sets a separate sampler for the evaluate phase. By
// default both phases share one.
func WithEvaluatePolicy(p selection.Policy) Option {
	return func(c *Coordinator) {
		c.evalPolicy = p
	}
}

func WithStrategy(s fl.Strategy) Option {
	return func(c *Coordinator) {
		c.strategy = s
	}
}

func New(cfg Config, reg *registry.Registry, policy selection.Policy, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:        cfg,
		registry:   reg,
		fitPolicy:  policy,
		evalPolicy: policy,
		strategy:   fl.NewFedAvg(),
		observer:   nopObserver{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// RunRound drives one round from selection to publication. The global
// parameters in r are never modified; clients receive deep copies.
func (c *Coordinator) RunRound(ctx context.Context, r Round) (res Result, err error) {
	start := time.Now()
	res.Record = fl.RoundRecord{Round: r.Number, Timestamp: start.UTC()}
	c.transition(r.Number, Selecting)

	defer func() {
		res.Record.Duration = time.Since(start)
		if err != nil {
			c.transition(r.Number, Failed)
			res.Parameters = fl.ParameterSet{}
		} else {
			c.transition(r.Number, Published)
		}
		c.observer.RoundFinished(r.Number, res.Record.Duration, err)
		c.transition(r.Number, Idle)
	}()

	available := c.registry.ListAvailable()
	if len(available) < c.cfg.MinAvailable {
		return res, fmt.Errorf("%w: %d available, %d required to start", fl.ErrInsufficientClients, len(available), c.cfg.MinAvailable)
	}

	fitOutcome, fitResults, err := c.runFit(ctx, r, available)
	res.Record.Fit = fitOutcome
	if err != nil {
		return res, fmt.Errorf("fit: %w", err)
	}

	c.transition(r.Number, AggregatingFit)
	params, metrics, err := c.aggregateFit(fitResults)
	if err != nil {
		return res, fmt.Errorf("fit: %w", err)
	}
	params.Round = r.Number
	res.Record.FitMetrics = metrics

	if !c.cfg.Evaluate.Disabled() {
		c.transition(r.Number, Selecting)
		evalOutcome, evalResults, err := c.runEvaluate(ctx, r, params)
		res.Record.Evaluate = &evalOutcome
		if err != nil {
			return res, fmt.Errorf("evaluate: %w", err)
		}

		c.transition(r.Number, AggregatingEvaluate)
		loss, metrics, err := c.aggregateEvaluate(evalResults)
		if err != nil {
			return res, fmt.Errorf("evaluate: %w", err)
		}
		res.Record.Loss = &loss
		res.Record.Metrics = metrics
	}

	res.Parameters = params

	return res, nil
}

type reply[T any] struct {
	id     string
	result T
	err    error
}

func (c *Coordinator) runFit(ctx context.Context, r Round, available []registry.Proxy) (fl.PhaseOutcome, []reply[fl.FitResult], error) {
	selected, err := c.fitPolicy.Select(available, c.cfg.Fit.Fraction, c.cfg.Fit.MinClients)
	if err != nil {
		return fl.PhaseOutcome{}, nil, err
	}

	cfg := r.Fit
	cfg.Round = r.Number
	call := func(ctx context.Context, p registry.Proxy) (fl.FitResult, error) {
		res, err := p.Fit(ctx, r.Parameters.Clone(), cfg)
		if err != nil {
			return res, err
		}
		if res.NumSamples == 0 {
			return res, fl.ErrInvalidWeight
		}
		if err := r.Parameters.CompatibleWith(res.Parameters); err != nil {
			return res, err
		}

		return res, nil
	}

	return dispatch(ctx, c, r.Number, PhaseFit, c.cfg.Fit, selected, call, func(res fl.FitResult) uint64 { return res.NumSamples })
}

func (c *Coordinator) runEvaluate(ctx context.Context, r Round, params fl.ParameterSet) (fl.PhaseOutcome, []reply[fl.EvaluateResult], error) {
	available := c.registry.ListAvailable()
	selected, err := c.evalPolicy.Select(available, c.cfg.Evaluate.Fraction, c.cfg.Evaluate.MinClients)
	if err != nil {
		return fl.PhaseOutcome{}, nil, err
	}

	cfg := r.Evaluate
	cfg.Round = r.Number
	call := func(ctx context.Context, p registry.Proxy) (fl.EvaluateResult, error) {
		res, err := p.Evaluate(ctx, params.Clone(), cfg)
		if err != nil {
			return res, err
		}
		if res.NumSamples == 0 {
			return res, fl.ErrInvalidWeight
		}

		return res, nil
	}

	return dispatch(ctx, c, r.Number, PhaseEvaluate, c.cfg.Evaluate, selected, call, func(res fl.EvaluateResult) uint64 { return res.NumSamples })
}

// dispatch fans a call out to every selected proxy, waits for all of them
// under the round deadline and checks the phase quorum. Replies come back in
// id order. A shape mismatch cancels the outstanding calls and fails the
// phase.
func dispatch[T any](
	ctx context.Context,
	c *Coordinator,
	round uint64,
	phase Phase,
	cfg PhaseConfig,
	selected []registry.Proxy,
	call func(context.Context, registry.Proxy) (T, error),
	samples func(T) uint64,
) (fl.PhaseOutcome, []reply[T], error) {
	dispatching, collecting, _ := phase.states()
	c.transition(round, dispatching)

	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ID
	}
	proxies := c.registry.Acquire(ids)
	acquired := idsOf(proxies)
	defer c.registry.Release(acquired)

	outcome := fl.PhaseOutcome{
		Selected: acquired,
		Required: cfg.Required(len(proxies)),
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
	defer cancel()

	replies := make([]reply[T], len(proxies))
	g, gctx := errgroup.WithContext(rctx)
	for i, p := range proxies {
		g.Go(func() error {
			res, err := call(gctx, p)
			replies[i] = reply[T]{id: p.ID, result: res, err: err}
			if errors.Is(err, fl.ErrShapeMismatch) {
				return fmt.Errorf("client %s: %w", p.ID, err)
			}

			return nil
		})
	}
	c.transition(round, collecting)
	fatal := g.Wait()

	// Calls cut short by a fatal reply or by the caller are not the
	// client's fault and are only released.
	aborted := fatal != nil || ctx.Err() != nil

	var ok []reply[T]
	for _, rep := range replies {
		c.observer.ClientResult(round, phase, rep.id, rep.err)
		if rep.err != nil {
			outcome.Failed = append(outcome.Failed, rep.id)
			if aborted && errors.Is(rep.err, context.Canceled) {
				c.logger.Debug("client call aborted",
					slog.Uint64("round", round),
					slog.String("phase", string(phase)),
					slog.String("client_id", rep.id),
				)

				continue
			}
			c.registry.MarkResult(rep.id, false, registry.WithError(rep.err))
			evicted := c.registry.EvictIfExhausted(rep.id)
			c.logger.Warn("client failed",
				slog.Uint64("round", round),
				slog.String("phase", string(phase)),
				slog.String("client_id", rep.id),
				slog.Bool("evicted", evicted),
				slog.String("error", rep.err.Error()),
			)

			continue
		}
		outcome.Returned = append(outcome.Returned, rep.id)
		c.registry.MarkResult(rep.id, true, registry.WithSamples(samples(rep.result)))
		ok = append(ok, rep)
	}

	if fatal != nil {
		return outcome, nil, fatal
	}
	if len(ok) < outcome.Required {
		return outcome, nil, fmt.Errorf("%w: %d of %d selected returned, %d required", fl.ErrQuorumNotMet, len(ok), len(proxies), outcome.Required)
	}

	return outcome, ok, nil
}

func (c *Coordinator) aggregateFit(replies []reply[fl.FitResult]) (fl.ParameterSet, fl.Metrics, error) {
	params := make([]fl.WeightedParameters, len(replies))
	metrics := make([]fl.WeightedMetrics, len(replies))
	for i, rep := range replies {
		params[i] = fl.WeightedParameters{Parameters: rep.result.Parameters, Weight: rep.result.NumSamples}
		metrics[i] = fl.WeightedMetrics{Metrics: rep.result.Metrics, Weight: rep.result.NumSamples}
	}

	agg, err := c.strategy.AggregateParameters(params)
	if err != nil {
		return fl.ParameterSet{}, nil, err
	}
	m, err := c.strategy.AggregateMetrics(metrics)
	if err != nil {
		return fl.ParameterSet{}, nil, err
	}

	return agg, m, nil
}

func (c *Coordinator) aggregateEvaluate(replies []reply[fl.EvaluateResult]) (float64, fl.Metrics, error) {
	losses := make([]fl.WeightedLoss, len(replies))
	metrics := make([]fl.WeightedMetrics, len(replies))
	for i, rep := range replies {
		losses[i] = fl.WeightedLoss{Loss: rep.result.Loss, Weight: rep.result.NumSamples}
		metrics[i] = fl.WeightedMetrics{Metrics: rep.result.Metrics, Weight: rep.result.NumSamples}
	}

	loss, err := c.strategy.AggregateLoss(losses)
	if err != nil {
		return 0, nil, err
	}
	m, err := c.strategy.AggregateMetrics(metrics)
	if err != nil {
		return 0, nil, err
	}

	return loss, m, nil
}

func (c *Coordinator) transition(round uint64, to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from != to {
		c.observer.StateChanged(round, from, to)
	}
}

func idsOf(proxies []registry.Proxy) []string {
	ids := make([]string, len(proxies))
	for i, p := range proxies {
		ids[i] = p.ID
	}
	slices.Sort(ids)

	return ids
}
