package domain

import (
	"strings"
	"time"
	"unicode"
)

// TraceRecord is the immutable record of one processed request. Written
// exactly once per interaction regardless of which stage terminated the
// pipeline; read back as the "recent pattern" signal for future frames.
type TraceRecord struct {
	FrameID         string              `json:"frame_id,omitempty"`
	UserID          string              `json:"user_id"`
	InputSummary    string              `json:"input_summary"`
	Safety          SafetyAssessment    `json:"safety_assessment"`
	BreakerSnapshot CircuitBreakerState `json:"circuit_state_snapshot"`
	ResponseSummary string              `json:"response_summary"`
	Actions         []ActionSpec        `json:"actions,omitempty"`
	LatencyMS       int64               `json:"latency_ms"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Summarize truncates text to at most maxLen runes, cutting at the last word
// boundary and appending an ellipsis. Trace records hold summaries rather
// than transcripts so frames built from them stay bounded.
func Summarize(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if maxLen <= 0 || len([]rune(text)) <= maxLen {
		return text
	}
	runes := []rune(text)[:maxLen]
	cut := len(runes)
	for i := len(runes) - 1; i > maxLen/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}
