package manager

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
)

// Service is the training controller. It owns the global parameters and the
// round log and drives the coordinator one round at a time.
type Service interface {
	// Run executes numRounds rounds in sequence and returns their records.
	// It stops at the first round that cannot be published.
	Run(ctx context.Context, numRounds uint64, fit, eval fl.RoundConfig) ([]fl.RoundRecord, error)
	// StartRun launches Run in the background.
	StartRun(ctx context.Context, req RunRequest) (RunInfo, error)
	GetRun(ctx context.Context, runID string) (RunInfo, error)

	RegisterClient(ctx context.Context, clientID string) (registry.Proxy, error)
	ListClients(ctx context.Context, offset, limit uint64) (registry.ProxyPage, error)
	RemoveClient(ctx context.Context, clientID string) error

	ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error)
	GetRound(ctx context.Context, round uint64) (fl.RoundRecord, error)
	// GetParameters returns the version published by the given round.
	GetParameters(ctx context.Context, round uint64) (fl.ParameterSet, error)
	// LatestParameters returns the current global parameters.
	LatestParameters(ctx context.Context) (fl.ParameterSet, error)

	// Subscribe listens for client registrations and heartbeats.
	Subscribe(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type RunState uint8

const (
	RunPending RunState = iota
	RunRunning
	RunCompleted
	RunFailed
	RunCanceled
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = RunPending
	case "running":
		*s = RunRunning
	case "completed":
		*s = RunCompleted
	case "failed":
		*s = RunFailed
	case "canceled":
		*s = RunCanceled
	default:
		*s = RunPending
	}

	return nil
}

type RunRequest struct {
	Rounds   uint64         `json:"rounds"`
	Fit      fl.RoundConfig `json:"fit"`
	Evaluate fl.RoundConfig `json:"evaluate"`
}

type RunInfo struct {
	ID         string    `json:"id"`
	State      RunState  `json:"state"`
	Rounds     uint64    `json:"rounds"`
	Completed  uint64    `json:"completed"`
	LastRound  uint64    `json:"last_round,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Channels opens the RPC channel to a registered client.
type Channels interface {
	Channel(clientID string) fl.Trainer
}

// ChannelsFunc adapts a function to Channels.
type ChannelsFunc func(clientID string) fl.Trainer

func (f ChannelsFunc) Channel(clientID string) fl.Trainer {
	return f(clientID)
}
