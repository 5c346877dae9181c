package domain

import (
	"sort"
	"time"
)

// ContextItem is one unit of assembled context. Relevance is reported by the
// source in [0,1]; Weight is relevance scaled by the source's configured
// priority multiplier.
type ContextItem struct {
	Source    string  `json:"source"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Weight    float64 `json:"weight"`
}

// ContextFrame is the bounded bundle of context assembled for one request.
// Items are ordered by descending weight. A frame is immutable once handed
// to the router.
type ContextFrame struct {
	FrameID       string        `json:"frame_id"`
	UserID        string        `json:"user_id"`
	Items         []ContextItem `json:"items"`
	CognitiveLoad float64       `json:"cognitive_load"`
	TaskFocus     string        `json:"task_focus,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SourceIDs returns the sorted, de-duplicated set of source names that
// contributed items to the frame. Used for cache key derivation so that two
// frames built from the same sources share cached responses regardless of
// item content.
func (f *ContextFrame) SourceIDs() []string {
	seen := make(map[string]struct{}, len(f.Items))
	for _, it := range f.Items {
		seen[it.Source] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
