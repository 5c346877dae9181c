package router

import (
	"strings"

	"github.com/havenlabs/haven/internal/core/domain"
)

// planningKeywords are signals that the request involves multi-step work and
// deserves the deep path.
var planningKeywords = []string{
	"plan",
	"schedule",
	"organize",
	"steps",
	"first",
	"then",
	"after that",
	"remind me",
	"every day",
	"set up",
}

// Features are the measurable signals feeding the complexity score. Keeping
// them in a struct keeps the scoring a pure function, unit-testable without
// any generator in sight.
type Features struct {
	InputLength      int
	PlanningKeywords int
	ContextItems     int
	CognitiveLoad    float64
}

// ExtractFeatures derives features from a request and its frame.
func ExtractFeatures(frame *domain.ContextFrame, rawText string) Features {
	f := Features{InputLength: len(rawText)}
	lowered := strings.ToLower(rawText)
	for _, kw := range planningKeywords {
		if strings.Contains(lowered, kw) {
			f.PlanningKeywords++
		}
	}
	if frame != nil {
		f.ContextItems = len(frame.Items)
		f.CognitiveLoad = frame.CognitiveLoad
	}
	return f
}

// Score combines the features into a complexity score in [0,1]. Long inputs,
// planning language, rich context, and high frame load all push toward the
// deep path.
func (f Features) Score() float64 {
	length := float64(f.InputLength) / 400.0
	if length > 1 {
		length = 1
	}

	keywords := float64(f.PlanningKeywords) * 0.15
	if keywords > 0.45 {
		keywords = 0.45
	}

	items := float64(f.ContextItems) / 8.0
	if items > 1 {
		items = 1
	}

	return 0.35*length + keywords + 0.1*items + 0.1*f.CognitiveLoad
}
