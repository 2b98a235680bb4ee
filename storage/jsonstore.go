package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore is a collection store backed by one JSON file per named
// collection: whole-collection read and whole-collection overwrite, no
// row-level transactions. It is the compatibility backend; the Postgres
// repositories are the per-record target design.
type JSONStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewJSONStore(dir string, logger *slog.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %q: %w", dir, err)
	}
	return &JSONStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing writers of one collection.
func (s *JSONStore) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Read decodes the whole collection into dst (a pointer to a slice). An
// absent or unreadable collection decodes as empty rather than failing,
// matching the store contract.
func (s *JSONStore) Read(name string, dst interface{}) error {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("collection unreadable, treating as empty",
				slog.String("collection", name), slog.Any("error", err))
		}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("collection corrupt, treating as empty",
			slog.String("collection", name), slog.Any("error", err))
		return nil
	}
	return nil
}

// Write overwrites the whole collection. The file is written to a
// temporary name and renamed so readers never observe a torn file.
func (s *JSONStore) Write(name string, records interface{}) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode collection %q: %w", name, err)
	}

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write collection %q: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("failed to replace collection %q: %w", name, err)
	}
	return nil
}

// Mutate runs fn while holding the collection's writer lock, which is
// what closes the read-modify-write race of the original store.
func (s *JSONStore) Mutate(name string, fn func() error) error {
	l := s.lockFor(name)
	l.Lock()
	defer l.Unlock()
	return fn()
}
