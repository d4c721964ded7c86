package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/fxamacker/cbor/v2"
)

var (
	roundPrefix  = []byte("round:")
	paramsPrefix = []byte("params:")
)

// key appends the round as big-endian so byte order equals numeric order.
func key(prefix []byte, round uint64) []byte {
	k := make([]byte, len(prefix), len(prefix)+8)
	copy(k, prefix)

	return binary.BigEndian.AppendUint64(k, round)
}

type Rounds struct {
	db *Database
}

func NewRoundRepository(db *Database) *Rounds {
	return &Rounds{db: db}
}

func (r *Rounds) Create(ctx context.Context, rec fl.RoundRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create(key(roundPrefix, rec.Round), val)
}

func (r *Rounds) Get(ctx context.Context, round uint64) (fl.RoundRecord, error) {
	val, err := r.db.get(key(roundPrefix, round))
	if err != nil {
		return fl.RoundRecord{}, err
	}
	var rec fl.RoundRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return fl.RoundRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return rec, nil
}

func (r *Rounds) List(ctx context.Context, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	total, err := r.db.countWithPrefix(roundPrefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(roundPrefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	records := make([]fl.RoundRecord, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &records[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return records, total, nil
}

// Parameters stores parameter sets as CBOR.
type Parameters struct {
	db *Database
}

func NewParameterRepository(db *Database) *Parameters {
	return &Parameters{db: db}
}

func (r *Parameters) Save(ctx context.Context, p fl.ParameterSet) error {
	val, err := cbor.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create(key(paramsPrefix, p.Round), val)
}

func (r *Parameters) Get(ctx context.Context, round uint64) (fl.ParameterSet, error) {
	val, err := r.db.get(key(paramsPrefix, round))
	if err != nil {
		return fl.ParameterSet{}, err
	}

	return decodeParams(val)
}

func (r *Parameters) Latest(ctx context.Context) (fl.ParameterSet, error) {
	val, err := r.db.last(paramsPrefix)
	if err != nil {
		return fl.ParameterSet{}, err
	}

	return decodeParams(val)
}

func (r *Parameters) Versions(ctx context.Context) ([]uint64, error) {
	keys, err := r.db.keysWithPrefix(paramsPrefix)
	if err != nil {
		return nil, err
	}
	versions := make([]uint64, len(keys))
	for i, k := range keys {
		versions[i] = binary.BigEndian.Uint64(k[len(paramsPrefix):])
	}

	return versions, nil
}

func (r *Parameters) Delete(_ context.Context, round uint64) error {
	return r.db.delete(key(paramsPrefix, round))
}

func decodeParams(val []byte) (fl.ParameterSet, error) {
	var p fl.ParameterSet
	if err := cbor.Unmarshal(val, &p); err != nil {
		return fl.ParameterSet{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return p, nil
}
