// Package safety implements the deterministic crisis-pattern monitor that
// gates every request before any other processing. It is pure keyword
// detection over an ordered pattern table; no generative model is ever
// consulted, so the outcome is reproducible and auditable.
package safety

import (
	"sort"
	"strings"

	"github.com/havenlabs/haven/internal/core/domain"
)

// Pattern is one entry in the monitor's detection table: a set of keywords,
// the severity a match implies, and the fixed response template associated
// with it. Patterns are data, not control flow, so new ones can be added and
// audited without touching the matching logic.
type Pattern struct {
	Name     string
	Keywords []string
	Severity domain.RiskLevel
	Response string
}

// Monitor scans raw input against its pattern table. First match wins,
// ordered by descending severity with registration order breaking ties.
// Monitor is stateless across calls and safe for concurrent use.
type Monitor struct {
	patterns []Pattern
}

// NewMonitor builds a monitor over the given patterns. With no arguments it
// uses the default table. Patterns are ordered once at construction:
// critical before moderate, stable within a severity.
func NewMonitor(patterns ...Pattern) *Monitor {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	ordered := make([]Pattern, len(patterns))
	copy(ordered, patterns)
	sort.SliceStable(ordered, func(i, j int) bool {
		return severityRank(ordered[i].Severity) > severityRank(ordered[j].Severity)
	})
	for i := range ordered {
		lowered := make([]string, len(ordered[i].Keywords))
		for k, kw := range ordered[i].Keywords {
			lowered[k] = strings.ToLower(kw)
		}
		ordered[i].Keywords = lowered
	}
	return &Monitor{patterns: ordered}
}

// Assess runs the pattern scan over one input. The recent trace history is
// consulted only to escalate a moderate match that follows repeated elevated
// assessments; it never downgrades a match. Runtime is a single linear pass
// per keyword with no backtracking, so it stays bounded in the input length.
func (m *Monitor) Assess(rawText string, recent []*domain.TraceRecord) domain.SafetyAssessment {
	lowered := strings.ToLower(rawText)

	for _, p := range m.patterns {
		if !matchAny(lowered, p.Keywords) {
			continue
		}
		risk := p.Severity
		if risk == domain.RiskModerate && elevatedHistory(recent) {
			risk = domain.RiskCritical
		}
		assessment := domain.SafetyAssessment{
			Risk:           risk,
			MatchedPattern: p.Name,
		}
		if risk == domain.RiskCritical {
			assessment.HardResponse = p.Response
		}
		return assessment
	}

	return domain.SafetyAssessment{Risk: domain.RiskNone}
}

func matchAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// elevatedHistory reports whether at least two recent traces carried a
// moderate-or-higher assessment.
func elevatedHistory(recent []*domain.TraceRecord) bool {
	elevated := 0
	for _, rec := range recent {
		if rec == nil {
			continue
		}
		switch rec.Safety.Risk {
		case domain.RiskModerate, domain.RiskCritical:
			elevated++
		}
		if elevated >= 2 {
			return true
		}
	}
	return false
}

func severityRank(r domain.RiskLevel) int {
	switch r {
	case domain.RiskCritical:
		return 2
	case domain.RiskModerate:
		return 1
	default:
		return 0
	}
}
