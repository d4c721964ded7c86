package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
)

var _ manager.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    manager.Service
}

func Logging(logger *slog.Logger, svc manager.Service) manager.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig) (records []fl.RoundRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("rounds", numRounds),
			slog.Int("published", len(records)),
			slog.Group("fit",
				slog.Uint64("epochs", uint64(fit.Epochs)),
				slog.Uint64("batch_size", uint64(fit.BatchSize)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Run failed", args...)

			return
		}
		lm.logger.Info("Run completed successfully", args...)
	}(time.Now())

	return lm.svc.Run(ctx, numRounds, fit, eval)
}

func (lm *loggingMiddleware) StartRun(ctx context.Context, req manager.RunRequest) (run manager.RunInfo, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", run.ID),
				slog.Uint64("rounds", req.Rounds),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start run failed", args...)

			return
		}
		lm.logger.Info("Start run completed successfully", args...)
	}(time.Now())

	return lm.svc.StartRun(ctx, req)
}

func (lm *loggingMiddleware) GetRun(ctx context.Context, runID string) (run manager.RunInfo, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.String("state", run.State.String()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get run failed", args...)

			return
		}
		lm.logger.Info("Get run completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRun(ctx, runID)
}

func (lm *loggingMiddleware) RegisterClient(ctx context.Context, clientID string) (p registry.Proxy, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", clientID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register client failed", args...)

			return
		}
		lm.logger.Info("Register client completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterClient(ctx, clientID)
}

func (lm *loggingMiddleware) ListClients(ctx context.Context, offset, limit uint64) (page registry.ProxyPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List clients failed", args...)

			return
		}
		lm.logger.Info("List clients completed successfully", args...)
	}(time.Now())

	return lm.svc.ListClients(ctx, offset, limit)
}

func (lm *loggingMiddleware) RemoveClient(ctx context.Context, clientID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", clientID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Remove client failed", args...)

			return
		}
		lm.logger.Info("Remove client completed successfully", args...)
	}(time.Now())

	return lm.svc.RemoveClient(ctx, clientID)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (page fl.RoundPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, offset, limit)
}

func (lm *loggingMiddleware) GetRound(ctx context.Context, round uint64) (rec fl.RoundRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("round", round),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get round failed", args...)

			return
		}
		lm.logger.Info("Get round completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRound(ctx, round)
}

func (lm *loggingMiddleware) GetParameters(ctx context.Context, round uint64) (p fl.ParameterSet, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("round", round),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get parameters failed", args...)

			return
		}
		lm.logger.Info("Get parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.GetParameters(ctx, round)
}

func (lm *loggingMiddleware) LatestParameters(ctx context.Context) (p fl.ParameterSet, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("round", p.Round),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get latest parameters failed", args...)

			return
		}
		lm.logger.Info("Get latest parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.LatestParameters(ctx)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe to client announcements failed", args...)

			return
		}
		lm.logger.Info("Subscribe to client announcements completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
