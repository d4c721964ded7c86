package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
	"github.com/go-kit/kit/metrics"
)

var _ manager.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     manager.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc manager.Service) manager.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig) ([]fl.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "run").Add(1)
		mm.latency.With("method", "run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Run(ctx, numRounds, fit, eval)
}

func (mm *metricsMiddleware) StartRun(ctx context.Context, req manager.RunRequest) (manager.RunInfo, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-run").Add(1)
		mm.latency.With("method", "start-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StartRun(ctx, req)
}

func (mm *metricsMiddleware) GetRun(ctx context.Context, runID string) (manager.RunInfo, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-run").Add(1)
		mm.latency.With("method", "get-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRun(ctx, runID)
}

func (mm *metricsMiddleware) RegisterClient(ctx context.Context, clientID string) (registry.Proxy, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "register-client").Add(1)
		mm.latency.With("method", "register-client").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.RegisterClient(ctx, clientID)
}

func (mm *metricsMiddleware) ListClients(ctx context.Context, offset, limit uint64) (registry.ProxyPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-clients").Add(1)
		mm.latency.With("method", "list-clients").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListClients(ctx, offset, limit)
}

func (mm *metricsMiddleware) RemoveClient(ctx context.Context, clientID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "remove-client").Add(1)
		mm.latency.With("method", "remove-client").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.RemoveClient(ctx, clientID)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}

func (mm *metricsMiddleware) GetRound(ctx context.Context, round uint64) (fl.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-round").Add(1)
		mm.latency.With("method", "get-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRound(ctx, round)
}

func (mm *metricsMiddleware) GetParameters(ctx context.Context, round uint64) (fl.ParameterSet, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-parameters").Add(1)
		mm.latency.With("method", "get-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetParameters(ctx, round)
}

func (mm *metricsMiddleware) LatestParameters(ctx context.Context) (fl.ParameterSet, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "latest-parameters").Add(1)
		mm.latency.With("method", "latest-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.LatestParameters(ctx)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "subscribe").Add(1)
		mm.latency.With("method", "subscribe").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Subscribe(ctx)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "shutdown").Add(1)
		mm.latency.With("method", "shutdown").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Shutdown(ctx)
}
