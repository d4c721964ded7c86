package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
)

type State uint8

const (
	Available State = iota
	Busy
	Unreachable
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Busy:
		return "busy"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "available":
		*s = Available
	case "busy":
		*s = Busy
	case "unreachable":
		*s = Unreachable
	default:
		return fmt.Errorf("unknown proxy state %q", str)
	}

	return nil
}

// Proxy is a point-in-time view of one registered client. The embedded
// channel is shared between snapshots; the bookkeeping fields are not.
type Proxy struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	NumSamples   uint64    `json:"num_samples"`
	LastError    string    `json:"last_error,omitempty"`
	Failures     int       `json:"failures"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`

	channel fl.Trainer
}

// NewProxy builds a detached proxy around a channel. It is mostly useful in
// tests; the registry builds its own.
func NewProxy(id string, ch fl.Trainer) Proxy {
	return Proxy{ID: id, channel: ch}
}

func (p Proxy) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	if p.channel == nil {
		return fl.ParameterSet{}, fmt.Errorf("%w: %s has no channel", fl.ErrNoResponse, p.ID)
	}

	return p.channel.GetParameters(ctx)
}

func (p Proxy) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.FitResult, error) {
	if p.channel == nil {
		return fl.FitResult{}, fmt.Errorf("%w: %s has no channel", fl.ErrNoResponse, p.ID)
	}

	return p.channel.Fit(ctx, params, cfg)
}

func (p Proxy) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.EvaluateResult, error) {
	if p.channel == nil {
		return fl.EvaluateResult{}, fmt.Errorf("%w: %s has no channel", fl.ErrNoResponse, p.ID)
	}

	return p.channel.Evaluate(ctx, params, cfg)
}

type ProxyPage struct {
	Offset  uint64  `json:"offset"`
	Limit   uint64  `json:"limit"`
	Total   uint64  `json:"total"`
	Clients []Proxy `json:"clients"`
}
