package mocks

import (
	"context"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ fl.Trainer = (*Trainer)(nil)

// Trainer is a mock implementation of the fl.Trainer interface.
type Trainer struct {
	mock.Mock
}

func (m *Trainer) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	args := m.Called(ctx)

	return args.Get(0).(fl.ParameterSet), args.Error(1)
}

func (m *Trainer) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.FitResult, error) {
	args := m.Called(ctx, params, cfg)

	return args.Get(0).(fl.FitResult), args.Error(1)
}

func (m *Trainer) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.EvaluateResult, error) {
	args := m.Called(ctx, params, cfg)

	return args.Get(0).(fl.EvaluateResult), args.Error(1)
}

// BlockUntilDone makes a mocked call wait for its context to end, the way
// an unresponsive client behaves.
func BlockUntilDone(args mock.Arguments) {
	ctx := args.Get(0).(context.Context)
	<-ctx.Done()
}
