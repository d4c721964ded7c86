package file

import (
	"context"

	"github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
)

type Rounds struct {
	store *Store
}

func NewRoundRepository(store *Store) *Rounds {
	return &Rounds{store: store}
}

func (r *Rounds) Create(_ context.Context, rec fl.RoundRecord) error {
	return r.store.write(r.store.roundPath(rec.Round), rec)
}

func (r *Rounds) Get(_ context.Context, round uint64) (fl.RoundRecord, error) {
	var rec fl.RoundRecord
	if err := r.store.read(r.store.roundPath(round), &rec); err != nil {
		return fl.RoundRecord{}, err
	}

	return rec, nil
}

func (r *Rounds) List(ctx context.Context, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	rounds, err := r.store.list(roundsDir, roundFormat)
	if err != nil {
		return nil, 0, err
	}

	total := uint64(len(rounds))
	if offset >= total {
		return []fl.RoundRecord{}, total, nil
	}
	end := min(offset+limit, total)

	records := make([]fl.RoundRecord, 0, end-offset)
	for _, round := range rounds[offset:end] {
		rec, err := r.Get(ctx, round)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, nil
}

type Parameters struct {
	store *Store
}

func NewParameterRepository(store *Store) *Parameters {
	return &Parameters{store: store}
}

func (r *Parameters) Save(_ context.Context, p fl.ParameterSet) error {
	return r.store.write(r.store.paramsPath(p.Round), p)
}

func (r *Parameters) Get(_ context.Context, round uint64) (fl.ParameterSet, error) {
	var p fl.ParameterSet
	if err := r.store.read(r.store.paramsPath(round), &p); err != nil {
		return fl.ParameterSet{}, err
	}

	return p, nil
}

func (r *Parameters) Latest(ctx context.Context) (fl.ParameterSet, error) {
	versions, err := r.Versions(ctx)
	if err != nil {
		return fl.ParameterSet{}, err
	}
	if len(versions) == 0 {
		return fl.ParameterSet{}, errors.ErrNotFound
	}

	return r.Get(ctx, versions[len(versions)-1])
}

func (r *Parameters) Versions(_ context.Context) ([]uint64, error) {
	return r.store.list(paramsDir, paramsFormat)
}

func (r *Parameters) Delete(_ context.Context, round uint64) error {
	return r.store.remove(r.store.paramsPath(round))
}
