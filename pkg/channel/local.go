package channel

import (
	"context"

	"github.com/absmach/fedcoord/pkg/fl"
)

var _ fl.Trainer = (*Local)(nil)

// Local calls a trainer in the same process. Parameters are deep-copied in
// both directions so the trainer never shares memory with the caller.
type Local struct {
	trainer fl.Trainer
}

func NewLocal(trainer fl.Trainer) *Local {
	return &Local{trainer: trainer}
}

func (l *Local) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	params, err := l.trainer.GetParameters(ctx)
	if err != nil {
		return fl.ParameterSet{}, classify(ctx, err)
	}

	return params.Clone(), nil
}

func (l *Local) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.FitResult, error) {
	res, err := l.trainer.Fit(ctx, params.Clone(), cfg)
	if err != nil {
		return fl.FitResult{}, classify(ctx, err)
	}
	res.Parameters = res.Parameters.Clone()
	res.Metrics = res.Metrics.Clone()

	return res, nil
}

func (l *Local) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.EvaluateResult, error) {
	res, err := l.trainer.Evaluate(ctx, params.Clone(), cfg)
	if err != nil {
		return fl.EvaluateResult{}, classify(ctx, err)
	}
	res.Metrics = res.Metrics.Clone()

	return res, nil
}
