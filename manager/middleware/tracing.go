package middleware

import (
	"context"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ manager.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    manager.Service
}

func Tracing(tracer trace.Tracer, svc manager.Service) manager.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig) (records []fl.RoundRecord, err error) {
	ctx, span := tm.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.Int64("rounds", int64(numRounds)),
		attribute.Int64("epochs", int64(fit.Epochs)),
	))
	defer func() {
		span.SetAttributes(attribute.Int("published", len(records)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return tm.svc.Run(ctx, numRounds, fit, eval)
}

func (tm *tracing) StartRun(ctx context.Context, req manager.RunRequest) (manager.RunInfo, error) {
	ctx, span := tm.tracer.Start(ctx, "start-run", trace.WithAttributes(
		attribute.Int64("rounds", int64(req.Rounds)),
	))
	defer span.End()

	return tm.svc.StartRun(ctx, req)
}

func (tm *tracing) GetRun(ctx context.Context, runID string) (manager.RunInfo, error) {
	ctx, span := tm.tracer.Start(ctx, "get-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.GetRun(ctx, runID)
}

func (tm *tracing) RegisterClient(ctx context.Context, clientID string) (registry.Proxy, error) {
	ctx, span := tm.tracer.Start(ctx, "register-client", trace.WithAttributes(
		attribute.String("id", clientID),
	))
	defer span.End()

	return tm.svc.RegisterClient(ctx, clientID)
}

func (tm *tracing) ListClients(ctx context.Context, offset, limit uint64) (registry.ProxyPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-clients", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListClients(ctx, offset, limit)
}

func (tm *tracing) RemoveClient(ctx context.Context, clientID string) error {
	ctx, span := tm.tracer.Start(ctx, "remove-client", trace.WithAttributes(
		attribute.String("id", clientID),
	))
	defer span.End()

	return tm.svc.RemoveClient(ctx, clientID)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}

func (tm *tracing) GetRound(ctx context.Context, round uint64) (fl.RoundRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "get-round", trace.WithAttributes(
		attribute.Int64("round", int64(round)),
	))
	defer span.End()

	return tm.svc.GetRound(ctx, round)
}

func (tm *tracing) GetParameters(ctx context.Context, round uint64) (fl.ParameterSet, error) {
	ctx, span := tm.tracer.Start(ctx, "get-parameters", trace.WithAttributes(
		attribute.Int64("round", int64(round)),
	))
	defer span.End()

	return tm.svc.GetParameters(ctx, round)
}

func (tm *tracing) LatestParameters(ctx context.Context) (fl.ParameterSet, error) {
	ctx, span := tm.tracer.Start(ctx, "latest-parameters")
	defer span.End()

	return tm.svc.LatestParameters(ctx)
}

func (tm *tracing) Subscribe(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}

func (tm *tracing) Shutdown(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "shutdown")
	defer span.End()

	return tm.svc.Shutdown(ctx)
}
