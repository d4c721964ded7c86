package mocks

import (
	"context"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
	"github.com/stretchr/testify/mock"
)

var _ manager.Service = (*MockService)(nil)

// MockService is a mock implementation of the manager.Service interface
type MockService struct {
	mock.Mock
}

// Run runs training rounds in the foreground
func (m *MockService) Run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig) ([]fl.RoundRecord, error) {
	args := m.Called(ctx, numRounds, fit, eval)
	return args.Get(0).([]fl.RoundRecord), args.Error(1)
}

// StartRun starts a background run
func (m *MockService) StartRun(ctx context.Context, req manager.RunRequest) (manager.RunInfo, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(manager.RunInfo), args.Error(1)
}

func (m *MockService) GetRun(ctx context.Context, runID string) (manager.RunInfo, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(manager.RunInfo), args.Error(1)
}

// RegisterClient admits a client
func (m *MockService) RegisterClient(ctx context.Context, clientID string) (registry.Proxy, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(registry.Proxy), args.Error(1)
}

func (m *MockService) ListClients(ctx context.Context, offset, limit uint64) (registry.ProxyPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(registry.ProxyPage), args.Error(1)
}

func (m *MockService) RemoveClient(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

// ListRounds lists published round records with pagination
func (m *MockService) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(fl.RoundPage), args.Error(1)
}

func (m *MockService) GetRound(ctx context.Context, round uint64) (fl.RoundRecord, error) {
	args := m.Called(ctx, round)
	return args.Get(0).(fl.RoundRecord), args.Error(1)
}

func (m *MockService) GetParameters(ctx context.Context, round uint64) (fl.ParameterSet, error) {
	args := m.Called(ctx, round)
	return args.Get(0).(fl.ParameterSet), args.Error(1)
}

func (m *MockService) LatestParameters(ctx context.Context) (fl.ParameterSet, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.ParameterSet), args.Error(1)
}

// Subscribe subscribes to client announcements
func (m *MockService) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Shutdown stops the service
func (m *MockService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
