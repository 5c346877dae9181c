package ports

import (
	"context"
	"errors"
	"time"

	"github.com/havenlabs/haven/internal/core/domain"
)

// ErrNotFound is returned by KeyValueStore.Get when the key is absent or
// expired.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is the shared keyed store backing circuit breaker state and
// the response cache. It is externally owned so multiple workers can share
// consistent state.
type KeyValueStore interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSet atomically replaces the value under key only if the
	// currently stored value equals old. A nil old means the key must be
	// absent. It returns true when the swap was applied, false on a
	// conflict; the error is reserved for store failures.
	CompareAndSet(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)

	Close() error
}

// TraceStore is the append-only interaction history. Records are written
// once and never mutated.
type TraceStore interface {
	// Append persists one trace record.
	Append(ctx context.Context, rec *domain.TraceRecord) error

	// Recent returns up to n most recent records for a user, newest first.
	// n <= 0 means no limit.
	Recent(ctx context.Context, userID string, n int) ([]*domain.TraceRecord, error)

	Close() error
}
