package engine

import (
	"fmt"
	"strings"

	"github.com/veliant/tribunal/internal/schema"
)

// Audit gate statuses as emitted by the auditor.
const (
	GateProceed = "proceed"
	GateBlock   = "block"
	GateClarify = "request_clarification"
)

// GateDecision is the engine's routing of the auditor's output.
type GateDecision struct {
	Status              string
	Reasoning           string
	ClarificationPrompt string
}

// EvaluateGate routes the auditor's outcome. The gate fails closed: an
// unrecognized status, or an output that never passed validation, blocks the
// question rather than letting it through.
func EvaluateGate(out schema.Outcome) GateDecision {
	if !out.Valid {
		return GateDecision{
			Status:    GateBlock,
			Reasoning: "audit output failed validation: " + violationText(out.Violations),
		}
	}
	status := strings.ToLower(strings.TrimSpace(schema.Str(out.Payload, "audit_status")))
	reasoning := strings.TrimSpace(schema.Str(out.Payload, "reasoning"))
	switch status {
	case GateProceed:
		return GateDecision{Status: GateProceed, Reasoning: reasoning}
	case GateClarify:
		prompt := strings.TrimSpace(schema.Str(out.Payload, "clarification_prompt"))
		if prompt == "" {
			prompt = "Restate the question with the ambiguity resolved."
		}
		return GateDecision{Status: GateClarify, Reasoning: reasoning, ClarificationPrompt: prompt}
	default:
		if reasoning == "" {
			reasoning = fmt.Sprintf("audit returned unrecognized status %q", status)
		}
		return GateDecision{Status: GateBlock, Reasoning: reasoning}
	}
}
