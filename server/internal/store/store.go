package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one received record together with where and when it arrived.
// The indexed fields are copied out of Record at decode time.
type Entry struct {
	ID         string
	Transport  string // "http" | "udp"
	Remote     string
	ReceivedAt time.Time

	Level       string
	Application string
	Environment string
	Host        string
	Message     string
	RequestID   string
	AppID       int64

	// Record is the record JSON exactly as decoded from the wire.
	Record []byte
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Level       string
	Application string
	Environment string
	RequestID   string
	Transport   string
	AppID       int64
	Limit       int
}

func (f Filter) match(e *Entry) bool {
	switch {
	case f.Level != "" && f.Level != e.Level:
		return false
	case f.Application != "" && f.Application != e.Application:
		return false
	case f.Environment != "" && f.Environment != e.Environment:
		return false
	case f.RequestID != "" && f.RequestID != e.RequestID:
		return false
	case f.Transport != "" && f.Transport != e.Transport:
		return false
	case f.AppID != 0 && f.AppID != e.AppID:
		return false
	}
	return true
}

// Store is a thread-safe in-memory record store. Entries are kept in arrival
// order; a background goroutine (Run) evicts entries older than the TTL.
type Store struct {
	mu       sync.RWMutex
	entries  []*Entry // oldest first
	byID     map[string]*Entry
	dropped  uint64
	ttl      time.Duration
	capacity int
	now      func() time.Time // injectable for deterministic tests
	newID    func() string
}

// New creates a Store with the given TTL and capacity.
func New(ttl time.Duration, capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		byID:     make(map[string]*Entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Put assigns e an ID and receive time and appends it. When the store is at
// capacity the oldest entry is dropped. Callers must not modify e afterwards.
func (s *Store) Put(e *Entry) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.newID()
	e.ReceivedAt = s.now()
	s.entries = append(s.entries, e)
	s.byID[e.ID] = e

	for len(s.entries) > s.capacity {
		delete(s.byID, s.entries[0].ID)
		s.entries[0] = nil
		s.entries = s.entries[1:]
		s.dropped++
	}
	return e
}

// Get returns the live entry with the given ID.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok || !e.ReceivedAt.After(s.now().Add(-s.ttl)) {
		return nil, false
	}
	return e, true
}

// List returns live entries matching f, newest first.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List(f Filter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !e.ReceivedAt.After(cutoff) || !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Count returns the number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dropped returns how many entries were displaced by the capacity bound.
func (s *Store) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes entries whose ReceivedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.ReceivedAt.After(cutoff) {
			kept = append(kept, e)
			continue
		}
		delete(s.byID, e.ID)
	}
	removed := len(s.entries) - len(kept)
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale records", "count", n)
			}
		}
	}
}

// Capacity returns the configured maximum number of entries.
func (s *Store) Capacity() int { return s.capacity }
