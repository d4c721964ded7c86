// Package file keeps round records and parameter versions as JSON files in
// a directory tree, one file per round.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
)

const (
	roundsDir = "rounds"
	paramsDir = "params"

	roundFormat  = "round_%020d.json"
	paramsFormat = "params_v%d.json"
)

type Store struct {
	root string
	mu   sync.RWMutex
}

func NewStore(root string) (*Store, error) {
	for _, dir := range []string{roundsDir, paramsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Store{root: root}, nil
}

func (s *Store) roundPath(round uint64) string {
	return filepath.Join(s.root, roundsDir, fmt.Sprintf(roundFormat, round))
}

func (s *Store) paramsPath(round uint64) string {
	return filepath.Join(s.root, paramsDir, fmt.Sprintf(paramsFormat, round))
}

// write stores v under path unless the file already exists. The content is
// written to a temporary file first so readers never see a partial file.
func (s *Store) write(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return pkgerrors.ErrEntityExists
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func (s *Store) read(path string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pkgerrors.ErrNotFound
		}

		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return nil
}

func (s *Store) remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pkgerrors.ErrNotFound
		}

		return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
	}

	return nil
}

// list returns the round numbers of the files in dir that match format,
// sorted ascending.
func (s *Store) list(dir, format string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		return nil, err
	}

	rounds := []uint64{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var round uint64
		if _, err := fmt.Sscanf(entry.Name(), format, &round); err == nil {
			rounds = append(rounds, round)
		}
	}
	slices.Sort(rounds)

	return rounds, nil
}
