// Package channel carries trainer calls between the coordinator and its
// clients. Every channel reports a missed deadline as fl.ErrNoResponse and
// an error raised by the client as fl.ErrClientFailure.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/fedcoord/pkg/fl"
)

const (
	MethodGetParameters = "get_parameters"
	MethodFit           = "fit"
	MethodEvaluate      = "evaluate"
)

// Envelope frames every request and response on the wire.
type Envelope struct {
	RequestID string `json:"request_id"        cbor:"request_id"`
	Method    string `json:"method"            cbor:"method"`
	Payload   []byte `json:"payload,omitempty" cbor:"payload,omitempty"`
	Error     string `json:"error,omitempty"   cbor:"error,omitempty"`
}

type Instruction struct {
	Parameters fl.ParameterSet `json:"parameters" cbor:"parameters"`
	Config     fl.RoundConfig  `json:"config"     cbor:"config"`
}

func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fl.ErrNoResponse), errors.Is(err, fl.ErrClientFailure):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", fl.ErrNoResponse, ctx.Err())
	default:
		return fmt.Errorf("%w: %w", fl.ErrClientFailure, err)
	}
}
