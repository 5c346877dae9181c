// Package memory provides in-memory implementations of the storage ports,
// used for tests and single-process development deployments.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/havenlabs/haven/internal/core/ports"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// KV is an in-memory KeyValueStore with per-entry TTL and compare-and-set.
type KV struct {
	mu      sync.Mutex
	entries map[string]entry
}

var _ ports.KeyValueStore = (*KV)(nil)

// NewKV creates an empty in-memory key-value store.
func NewKV() *KV {
	return &KV{entries: make(map[string]entry)}
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = newEntry(value, ttl)
	return nil
}

func (s *KV) CompareAndSet(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.live(key)
	if old == nil {
		if ok {
			return false, nil
		}
	} else {
		if !ok || !bytes.Equal(cur.value, old) {
			return false, nil
		}
	}

	s.entries[key] = newEntry(value, ttl)
	return true, nil
}

func (s *KV) Close() error {
	return nil
}

// live returns the entry for key, evicting it lazily when expired. Caller
// must hold the lock.
func (s *KV) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func newEntry(value []byte, ttl time.Duration) entry {
	stored := make([]byte, len(value))
	copy(stored, value)
	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}
