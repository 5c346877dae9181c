package memory

import (
	"context"
	"sync"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// TraceStore is an in-memory append-only trace history keyed by user.
type TraceStore struct {
	mu     sync.RWMutex
	byUser map[string][]*domain.TraceRecord
}

var _ ports.TraceStore = (*TraceStore)(nil)

// NewTraceStore creates an empty in-memory trace store.
func NewTraceStore() *TraceStore {
	return &TraceStore{byUser: make(map[string][]*domain.TraceRecord)}
}

func (s *TraceStore) Append(ctx context.Context, rec *domain.TraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], &stored)
	return nil
}

// Recent returns up to n records for the user, newest first.
func (s *TraceStore) Recent(ctx context.Context, userID string, n int) ([]*domain.TraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.byUser[userID]
	if n <= 0 || n > len(recs) {
		n = len(recs)
	}
	out := make([]*domain.TraceRecord, 0, n)
	for i := len(recs) - 1; i >= len(recs)-n; i-- {
		copied := *recs[i]
		out = append(out, &copied)
	}
	return out, nil
}

func (s *TraceStore) Close() error {
	return nil
}
