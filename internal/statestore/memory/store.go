// SPDX-License-Identifier: Apache-2.0

// Package memory implements statestore.Store with a mutex-guarded map.
// Safe for concurrent use. Intended for unit tests and local development.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
)

type record struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (r *record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

// Store is a fully in-memory statestore.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

var _ statestore.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok || rec.expired(s.now()) {
		return nil, statestore.ErrKeyNotFound
	}

	out := make([]byte, len(rec.value))
	copy(out, rec.value)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = s.newRecord(value, ttl)
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && !rec.expired(s.now()) {
		return false, nil
	}

	s.records[key] = s.newRecord(value, ttl)
	return true, nil
}

func (s *Store) CompareAndSwap(_ context.Context, key string, old, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.expired(s.now()) || !bytes.Equal(rec.value, old) {
		return statestore.ErrCASMismatch
	}

	s.records[key] = s.newRecord(value, ttl)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return 0, nil
	}
	delete(s.records, key)
	if rec.expired(s.now()) {
		return 0, nil
	}
	return 1, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	return ok && !rec.expired(s.now()), nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	keys := make([]string, 0, len(s.records))
	for key, rec := range s.records {
		if rec.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) newRecord(value []byte, ttl time.Duration) *record {
	stored := make([]byte, len(value))
	copy(stored, value)

	rec := &record{value: stored}
	if ttl > 0 {
		rec.expiresAt = s.now().Add(ttl)
	}
	return rec
}
