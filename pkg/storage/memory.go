package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
)

type memoryRounds struct {
	sync.Mutex

	data map[uint64]fl.RoundRecord
}

func NewMemoryRoundRepository() RoundRepository {
	return &memoryRounds{
		data: make(map[uint64]fl.RoundRecord),
	}
}

func (s *memoryRounds) Create(_ context.Context, r fl.RoundRecord) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[r.Round]; ok {
		return errors.ErrEntityExists
	}
	s.data[r.Round] = r

	return nil
}

func (s *memoryRounds) Get(_ context.Context, round uint64) (fl.RoundRecord, error) {
	s.Lock()
	defer s.Unlock()

	if r, ok := s.data[round]; ok {
		return r, nil
	}

	return fl.RoundRecord{}, errors.ErrNotFound
}

func (s *memoryRounds) List(_ context.Context, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	s.Lock()
	defer s.Unlock()

	keys := sortedKeys(s.data)
	total := uint64(len(keys))
	if offset >= total {
		return []fl.RoundRecord{}, total, nil
	}
	end := min(offset+limit, total)

	result := make([]fl.RoundRecord, 0, end-offset)
	for _, k := range keys[offset:end] {
		result = append(result, s.data[k])
	}

	return result, total, nil
}

type memoryParameters struct {
	sync.Mutex

	data map[uint64]fl.ParameterSet
}

func NewMemoryParameterRepository() ParameterRepository {
	return &memoryParameters{
		data: make(map[uint64]fl.ParameterSet),
	}
}

func (s *memoryParameters) Save(_ context.Context, p fl.ParameterSet) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[p.Round]; ok {
		return errors.ErrEntityExists
	}
	s.data[p.Round] = p.Clone()

	return nil
}

func (s *memoryParameters) Get(_ context.Context, round uint64) (fl.ParameterSet, error) {
	s.Lock()
	defer s.Unlock()

	if p, ok := s.data[round]; ok {
		return p.Clone(), nil
	}

	return fl.ParameterSet{}, errors.ErrNotFound
}

func (s *memoryParameters) Latest(_ context.Context) (fl.ParameterSet, error) {
	s.Lock()
	defer s.Unlock()

	keys := sortedKeys(s.data)
	if len(keys) == 0 {
		return fl.ParameterSet{}, errors.ErrNotFound
	}

	return s.data[keys[len(keys)-1]].Clone(), nil
}

func (s *memoryParameters) Versions(_ context.Context) ([]uint64, error) {
	s.Lock()
	defer s.Unlock()

	return sortedKeys(s.data), nil
}

func (s *memoryParameters) Delete(_ context.Context, round uint64) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[round]; !ok {
		return errors.ErrNotFound
	}
	delete(s.data, round)

	return nil
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
