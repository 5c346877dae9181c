package safety

import (
	"strings"
	"testing"

	"github.com/havenlabs/haven/internal/core/domain"
)

func TestAssessCriticalMatchReturnsHardResponse(t *testing.T) {
	m := NewMonitor()

	a := m.Assess("I think I want to end my life", nil)

	if a.Risk != domain.RiskCritical {
		t.Fatalf("expected critical risk, got %s", a.Risk)
	}
	if a.MatchedPattern != "self_harm" {
		t.Fatalf("expected self_harm pattern, got %s", a.MatchedPattern)
	}
	if a.HardResponse != CrisisResponse {
		t.Fatalf("expected the exact crisis response, got %q", a.HardResponse)
	}
	if !strings.Contains(a.HardResponse, "988") {
		t.Fatal("crisis response must contain the crisis resource contact")
	}
}

func TestAssessIsCaseInsensitive(t *testing.T) {
	m := NewMonitor()

	a := m.Assess("I WANT TO DIE", nil)
	if a.Risk != domain.RiskCritical {
		t.Fatalf("expected critical risk for upper-case input, got %s", a.Risk)
	}
}

func TestAssessNoMatch(t *testing.T) {
	m := NewMonitor()

	a := m.Assess("remind me to water the plants tomorrow", nil)

	if a.Risk != domain.RiskNone {
		t.Fatalf("expected no risk, got %s", a.Risk)
	}
	if a.HardResponse != "" {
		t.Fatalf("expected no hard response, got %q", a.HardResponse)
	}
}

func TestAssessSeverityOrderBeatsRegistrationOrder(t *testing.T) {
	// The moderate pattern is registered first but the critical one must win
	// when both match.
	m := NewMonitor(
		Pattern{Name: "mod", Severity: domain.RiskModerate, Keywords: []string{"storm"}, Response: "mod"},
		Pattern{Name: "crit", Severity: domain.RiskCritical, Keywords: []string{"storm"}, Response: "crit"},
	)

	a := m.Assess("there is a storm coming", nil)
	if a.MatchedPattern != "crit" {
		t.Fatalf("expected critical pattern to win, got %s", a.MatchedPattern)
	}
}

func TestAssessRegistrationOrderBreaksTies(t *testing.T) {
	m := NewMonitor(
		Pattern{Name: "first", Severity: domain.RiskModerate, Keywords: []string{"storm"}},
		Pattern{Name: "second", Severity: domain.RiskModerate, Keywords: []string{"storm"}},
	)

	a := m.Assess("storm", nil)
	if a.MatchedPattern != "first" {
		t.Fatalf("expected first-registered pattern to win ties, got %s", a.MatchedPattern)
	}
}

func TestAssessModerateEscalatesWithElevatedHistory(t *testing.T) {
	m := NewMonitor()

	recent := []*domain.TraceRecord{
		{Safety: domain.SafetyAssessment{Risk: domain.RiskModerate}},
		{Safety: domain.SafetyAssessment{Risk: domain.RiskNone}},
		{Safety: domain.SafetyAssessment{Risk: domain.RiskModerate}},
	}

	a := m.Assess("everything feels hopeless today", recent)
	if a.Risk != domain.RiskCritical {
		t.Fatalf("expected escalation to critical, got %s", a.Risk)
	}
	if a.HardResponse == "" {
		t.Fatal("escalated assessment must carry a hard response")
	}
}

func TestAssessModerateWithoutHistoryStaysModerate(t *testing.T) {
	m := NewMonitor()

	a := m.Assess("everything feels hopeless today", nil)
	if a.Risk != domain.RiskModerate {
		t.Fatalf("expected moderate risk, got %s", a.Risk)
	}
	if a.HardResponse != "" {
		t.Fatalf("moderate assessment must not short-circuit, got response %q", a.HardResponse)
	}
}
