package engine

import (
	"fmt"
)

// Phase identifies one stage of the deliberation pipeline. A run advances
// through phases strictly forward; the two loop phases repeat in place up to
// their configured ceilings before the run moves on.
type Phase string

const (
	PhaseQuestionIntake    Phase = "question_intake"
	PhaseAuditGate         Phase = "audit_gate"
	PhaseQuestionAnalysis  Phase = "question_analysis"
	PhaseNullGeneration    Phase = "null_hypothesis_generation"
	PhasePersonaAllocation Phase = "persona_allocation"
	PhasePersonaExecution  Phase = "persona_execution"
	PhaseSynthesis         Phase = "synthesis"
	PhaseDisagreement      Phase = "disagreement_analysis"
	PhaseTargetedResearch  Phase = "targeted_research"
	PhaseAdjudication      Phase = "adjudication"
	PhaseCaseFile          Phase = "case_file"
	PhaseRobustness        Phase = "robustness_calculation"
	PhaseArbitration       Phase = "final_arbitration"
	PhaseTerminal          Phase = "terminal"
)

var allowedTransitions = map[Phase]map[Phase]struct{}{
	PhaseQuestionIntake: {
		PhaseAuditGate: {},
	},
	PhaseAuditGate: {
		PhaseQuestionAnalysis: {},
		PhaseTerminal:         {},
	},
	PhaseQuestionAnalysis: {
		PhaseNullGeneration: {},
	},
	PhaseNullGeneration: {
		PhasePersonaAllocation: {},
	},
	PhasePersonaAllocation: {
		PhasePersonaAllocation: {},
		PhasePersonaExecution:  {},
	},
	PhasePersonaExecution: {
		PhaseSynthesis: {},
	},
	PhaseSynthesis: {
		PhaseDisagreement: {},
	},
	PhaseDisagreement: {
		PhaseTargetedResearch: {},
	},
	PhaseTargetedResearch: {
		PhaseAdjudication: {},
	},
	PhaseAdjudication: {
		PhaseCaseFile: {},
	},
	PhaseCaseFile: {
		PhaseCaseFile:   {},
		PhaseRobustness: {},
	},
	PhaseRobustness: {
		PhaseArbitration: {},
	},
	PhaseArbitration: {
		PhaseTerminal: {},
	},
	PhaseTerminal: {},
}

// phaseOrder is the canonical forward sequence, used for display and for
// progress accounting. Loop phases appear once.
var phaseOrder = []Phase{
	PhaseQuestionIntake,
	PhaseAuditGate,
	PhaseQuestionAnalysis,
	PhaseNullGeneration,
	PhasePersonaAllocation,
	PhasePersonaExecution,
	PhaseSynthesis,
	PhaseDisagreement,
	PhaseTargetedResearch,
	PhaseAdjudication,
	PhaseCaseFile,
	PhaseRobustness,
	PhaseArbitration,
	PhaseTerminal,
}

// Phases returns the canonical forward sequence of pipeline phases.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// PhaseIndex returns the position of p in the canonical sequence, or -1 when
// p is not a known phase.
func PhaseIndex(p Phase) int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Loops reports whether p is a bounded-loop phase, i.e. one with a self edge.
func Loops(p Phase) bool {
	_, ok := allowedTransitions[p][p]
	return ok
}

func ValidatePhase(p Phase) error {
	if _, ok := allowedTransitions[p]; !ok {
		return fmt.Errorf("invalid phase: %q", p)
	}
	return nil
}

// ValidateTransition rejects any edge that is not declared in the transition
// table. Backward edges do not exist; loop phases may repeat themselves.
func ValidateTransition(from, to Phase) error {
	if err := ValidatePhase(from); err != nil {
		return err
	}
	if err := ValidatePhase(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid phase transition: %s -> %s", from, to)
	}
	return nil
}
