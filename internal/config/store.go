package config

import (
	"sync"
	"sync/atomic"
)

// Store caches the configuration for the life of the process.
//
// The first successful Resolve stores the Config; every later call returns
// that same pointer without reading the file. A failed load is not cached, so
// the next Resolve tries again. Concurrent first-time callers are serialized
// on mu and only one of them performs the load.
type Store struct {
	path string
	load func(path string) (*Config, error) // injectable for tests

	mu  sync.Mutex
	cfg atomic.Pointer[Config]
}

// NewStore returns a Store that loads the file at path on first use.
func NewStore(path string) *Store {
	return &Store{path: path, load: Load}
}

// Path returns the file the Store resolves from.
func (s *Store) Path() string {
	return s.path
}

// Resolve returns the cached Config, loading it first if necessary.
func (s *Store) Resolve() (*Config, error) {
	if cfg := s.cfg.Load(); cfg != nil {
		return cfg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have won while we waited for the lock.
	if cfg := s.cfg.Load(); cfg != nil {
		return cfg, nil
	}

	cfg, err := s.load(s.path)
	if err != nil {
		return nil, err
	}
	s.cfg.Store(cfg)
	return cfg, nil
}

// Cached reports whether a Config has been resolved successfully.
func (s *Store) Cached() bool {
	return s.cfg.Load() != nil
}
