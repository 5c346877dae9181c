package safety

import "github.com/havenlabs/haven/internal/core/domain"

// CrisisResponse is the fixed response returned for critical self-harm
// matches. The contact information is hard-coded on purpose: it must be
// present verbatim in every critical response regardless of any downstream
// failure.
const CrisisResponse = "I'm really glad you told me. You don't have to carry this alone. " +
	"If you are in immediate danger, please call your local emergency number now. " +
	"You can also reach the 988 Suicide & Crisis Lifeline — call or text 988, " +
	"available 24 hours a day. I'm here, and we can take this one small step at a time."

// DistressResponse is the template attached to moderate patterns. It is only
// surfaced when history escalates a moderate match to critical.
const DistressResponse = "That sounds really heavy, and I want to make sure you have support. " +
	"If things feel like too much, the 988 Suicide & Crisis Lifeline is there — call or text 988. " +
	"Would it help to slow down and talk through what's weighing on you?"

// DefaultPatterns returns the built-in detection table. Ordering within a
// severity is significant: earlier patterns win ties.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "self_harm",
			Severity: domain.RiskCritical,
			Keywords: []string{
				"kill myself",
				"end my life",
				"want to die",
				"suicide",
				"hurt myself",
				"harm myself",
				"better off dead",
				"no reason to live",
			},
			Response: CrisisResponse,
		},
		{
			Name:     "acute_despair",
			Severity: domain.RiskModerate,
			Keywords: []string{
				"hopeless",
				"can't go on",
				"cant go on",
				"give up on everything",
				"nothing matters anymore",
			},
			Response: DistressResponse,
		},
		{
			Name:     "acute_panic",
			Severity: domain.RiskModerate,
			Keywords: []string{
				"panic attack",
				"can't breathe",
				"cant breathe",
				"losing control",
			},
			Response: DistressResponse,
		},
	}
}
