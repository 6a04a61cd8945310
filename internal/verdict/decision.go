package verdict

import (
	"time"

	"github.com/veliant/tribunal/internal/schema"
)

// Terminal outcomes of a deliberation.
const (
	OutcomeCompleted             = "completed"
	OutcomeBlocked               = "blocked"
	OutcomeAwaitingClarification = "awaiting_clarification"
)

// Decision is the final payload of a run: what the tribunal concluded, how
// sure it is allowed to be about it, and why.
type Decision struct {
	RunID    string `json:"run_id"`
	Question string `json:"question"`
	Outcome  string `json:"outcome"`

	Verdict            string   `json:"verdict,omitempty"`
	Confidence         float64  `json:"confidence_percentage"`
	ClaimedConfidence  float64  `json:"claimed_confidence_percentage"`
	JustificationTrace []string `json:"justification_trace,omitempty"`
	CitedFactIDs       []string `json:"cited_fact_ids,omitempty"`
	NullAcknowledgment string   `json:"null_hypothesis_acknowledgment,omitempty"`
	Sensitivity        string   `json:"sensitivity_disclosure,omitempty"`

	Robustness Metrics `json:"robustness"`

	BlockReason         string `json:"block_reason,omitempty"`
	ClarificationPrompt string `json:"clarification_prompt,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Completed assembles the terminal decision from the arbiter's validated
// payload, clamping the claimed confidence to the robustness ceiling.
func Completed(runID, question string, payload map[string]any, m Metrics, at time.Time) Decision {
	claimed, _ := schema.Num(payload, "confidence_percentage")
	return Decision{
		RunID:              runID,
		Question:           question,
		Outcome:            OutcomeCompleted,
		Verdict:            schema.Str(payload, "verdict"),
		Confidence:         ClampConfidence(claimed, m),
		ClaimedConfidence:  claimed,
		JustificationTrace: schema.Strings(payload, "justification_trace"),
		CitedFactIDs:       schema.Strings(payload, "cited_fact_ids"),
		NullAcknowledgment: schema.Str(payload, "null_hypothesis_acknowledgment"),
		Sensitivity:        schema.Str(payload, "sensitivity_disclosure"),
		Robustness:         m,
		GeneratedAt:        at.UTC(),
	}
}

// Blocked is the terminal decision for a question the audit gate refused.
func Blocked(runID, question, reason string, at time.Time) Decision {
	return Decision{
		RunID:       runID,
		Question:    question,
		Outcome:     OutcomeBlocked,
		BlockReason: reason,
		Robustness:  Metrics{Interpretation: Fragile, ConfidenceCeiling: ceilingFragile},
		GeneratedAt: at.UTC(),
	}
}

// AwaitingClarification is the terminal decision when the gate needs the
// question restated before any analysis is spent.
func AwaitingClarification(runID, question, prompt string, at time.Time) Decision {
	return Decision{
		RunID:               runID,
		Question:            question,
		Outcome:             OutcomeAwaitingClarification,
		ClarificationPrompt: prompt,
		Robustness:          Metrics{Interpretation: Fragile, ConfidenceCeiling: ceilingFragile},
		GeneratedAt:         at.UTC(),
	}
}
