package frame

import (
	"context"
	"fmt"
	"strings"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// RecentTraceSource surfaces the user's recent interaction history as one
// summarized context item. Summaries keep the frame bounded no matter how
// long past transcripts were.
type RecentTraceSource struct {
	traces ports.TraceStore
	depth  int
}

var _ ports.ContextSource = (*RecentTraceSource)(nil)

// NewRecentTraceSource creates the recent-pattern source reading up to depth
// trace records per request.
func NewRecentTraceSource(traces ports.TraceStore, depth int) *RecentTraceSource {
	if depth <= 0 {
		depth = 5
	}
	return &RecentTraceSource{traces: traces, depth: depth}
}

func (s *RecentTraceSource) Name() string { return "recent_traces" }

func (s *RecentTraceSource) Fetch(ctx context.Context, userID, rawText, taskFocus string) ([]domain.ContextItem, error) {
	recs, err := s.traces.Recent(ctx, userID, s.depth)
	if err != nil {
		return nil, fmt.Errorf("recent traces for %s: %w", userID, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		lines = append(lines, fmt.Sprintf("%s -> %s",
			domain.Summarize(rec.InputSummary, 60),
			domain.Summarize(rec.ResponseSummary, 60)))
	}

	return []domain.ContextItem{{
		Content:   "Recent interactions:\n" + strings.Join(lines, "\n"),
		Relevance: recentRelevance(recs),
	}}, nil
}

// recentRelevance weights history slightly higher when recent interactions
// carried elevated safety assessments, so struggling users keep continuity.
func recentRelevance(recs []*domain.TraceRecord) float64 {
	rel := 0.35
	for _, rec := range recs {
		if rec.Safety.Risk != domain.RiskNone {
			rel = 0.55
			break
		}
	}
	return rel
}
