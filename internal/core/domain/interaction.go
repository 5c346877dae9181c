// Package domain defines the core data model for the cognitive pipeline:
// interaction requests, safety assessments, context frames, routing
// decisions, and trace records.
package domain

import "time"

// InteractionRequest is a single piece of free-text user input entering the
// pipeline. It is created at the system boundary and never mutated.
type InteractionRequest struct {
	UserID    string    `json:"user_id"`
	RawText   string    `json:"raw_text"`
	TaskFocus string    `json:"task_focus,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskLevel classifies the outcome of a safety assessment.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskModerate RiskLevel = "moderate"
	RiskCritical RiskLevel = "critical"
)

// SafetyAssessment is the result of running the crisis-pattern monitor over
// one request. Computed fresh per request; persisted only inside the trace.
type SafetyAssessment struct {
	Risk           RiskLevel `json:"risk_level"`
	MatchedPattern string    `json:"matched_pattern,omitempty"`
	// HardResponse is the fixed, audited response text returned verbatim
	// when Risk is RiskCritical. Empty otherwise.
	HardResponse string `json:"hard_response,omitempty"`
}

// BreakerState is the circuit breaker position for one user.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// CircuitBreakerState is the per-user breaker record kept in the key-value
// store. One record per user, mutated only by the breaker component.
type CircuitBreakerState struct {
	ConsecutiveFailures int          `json:"consecutive_failures"`
	State               BreakerState `json:"state"`
	OpenedAt            time.Time    `json:"opened_at,omitzero"`
	RecoveryUntil       time.Time    `json:"recovery_until,omitzero"`
}

// ActionSpec is an instruction for an external executor (notification,
// timer, environment change). The pipeline only produces these specs; it
// never executes them.
type ActionSpec struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Result is the structured outcome of processing one request: the response
// text for the user plus any side-effecting actions for external executors.
type Result struct {
	ResponseText string       `json:"response_text"`
	Actions      []ActionSpec `json:"actions"`
}

// RoutePath selects which generator handles a request.
type RoutePath string

const (
	// RouteFast is the local, low-latency path for simple requests.
	RouteFast RoutePath = "fast"
	// RouteDeep is the remote, higher-capability path for complex requests.
	RouteDeep RoutePath = "deep"
)

// RoutingDecision is produced and consumed within a single request.
type RoutingDecision struct {
	Path     RoutePath `json:"path"`
	CacheKey string    `json:"cache_key"`
	CacheHit bool      `json:"cache_hit"`
}
