// Package ports defines the interfaces the cognitive pipeline consumes.
// Implementations live in adapters (internal/storage/...) or are injected by
// the embedding application (context sources, generators).
package ports

import (
	"context"

	"github.com/havenlabs/haven/internal/core/domain"
)

// ContextSource supplies candidate context items for one request. Sources
// may fail or time out independently; a failing source contributes zero
// items and must never abort frame construction.
type ContextSource interface {
	// Name returns the stable identifier for this source. It is used for
	// priority/density lookup, cache keys, and tie-breaking, so it must not
	// change across requests.
	Name() string

	// Fetch returns zero or more candidate items with relevance in [0,1].
	Fetch(ctx context.Context, userID, rawText, taskFocus string) ([]domain.ContextItem, error)
}

// Generator produces a response and an action plan for a frame. The fast
// and deep pipeline paths are each backed by one Generator; implementations
// (local model, remote API) are out of scope for the core.
type Generator interface {
	Name() string
	Generate(ctx context.Context, frame *domain.ContextFrame, rawText string) (*domain.Result, error)
}
