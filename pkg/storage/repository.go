package storage

import (
	"context"
	"io"

	"github.com/absmach/fedcoord/pkg/fl"
)

// RoundRepository is the append-only log of published rounds.
type RoundRepository interface {
	// Create stores a record. A record for the same round already present
	// fails with errors.ErrEntityExists.
	Create(ctx context.Context, r fl.RoundRecord) error
	Get(ctx context.Context, round uint64) (fl.RoundRecord, error)
	// List returns records ordered by round number and the total count.
	List(ctx context.Context, offset, limit uint64) ([]fl.RoundRecord, uint64, error)
}

// ParameterRepository keeps every published version of the global
// parameters, keyed by round.
type ParameterRepository interface {
	Save(ctx context.Context, p fl.ParameterSet) error
	Get(ctx context.Context, round uint64) (fl.ParameterSet, error)
	// Latest returns the version with the highest round or
	// errors.ErrNotFound when nothing was saved yet.
	Latest(ctx context.Context) (fl.ParameterSet, error)
	Versions(ctx context.Context) ([]uint64, error)
	// Delete removes a version that was never published. A missing version
	// fails with errors.ErrNotFound.
	Delete(ctx context.Context, round uint64) error
}

type Repositories struct {
	Rounds     RoundRepository
	Parameters ParameterRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}
