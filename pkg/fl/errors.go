package fl

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientClients   = errors.New("not enough available clients")
	ErrShapeMismatch         = errors.New("parameter shapes do not match")
	ErrEmptyResultSet        = errors.New("no results provided for aggregation")
	ErrQuorumNotMet          = errors.New("round quorum not met")
	ErrQuorumUnreachable     = errors.New("round quorum unreachable after retries")
	ErrDuplicateActiveClient = errors.New("client is busy in an in-flight round")
	ErrNoClientsRegistered   = errors.New("no clients registered")
	ErrInvalidWeight         = errors.New("aggregation weight must be positive")
	ErrInvalidTensor         = errors.New("invalid tensor")
	ErrInvalidFraction       = errors.New("fraction must be within [0, 1]")
	ErrNoResponse            = errors.New("client did not respond")
	ErrClientFailure         = errors.New("client returned an error")
	ErrRunInProgress         = errors.New("a training run is already in progress")
	ErrEmptyClientID         = errors.New("empty client id")
	ErrClientNotFound        = errors.New("client not found")
)

// RoundError identifies the round that terminated a run.
type RoundError struct {
	Round    uint64
	Attempts int
	Err      error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d failed after %d attempt(s): %s", e.Round, e.Attempts, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}
