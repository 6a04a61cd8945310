package engine

import "testing"

func TestValidateTransition_ValidMatrix(t *testing.T) {
	t.Parallel()

	valid := [][2]Phase{
		{PhaseQuestionIntake, PhaseAuditGate},
		{PhaseAuditGate, PhaseQuestionAnalysis},
		{PhaseAuditGate, PhaseTerminal},
		{PhaseQuestionAnalysis, PhaseNullGeneration},
		{PhaseNullGeneration, PhasePersonaAllocation},
		{PhasePersonaAllocation, PhasePersonaAllocation},
		{PhasePersonaAllocation, PhasePersonaExecution},
		{PhasePersonaExecution, PhaseSynthesis},
		{PhaseSynthesis, PhaseDisagreement},
		{PhaseDisagreement, PhaseTargetedResearch},
		{PhaseTargetedResearch, PhaseAdjudication},
		{PhaseAdjudication, PhaseCaseFile},
		{PhaseCaseFile, PhaseCaseFile},
		{PhaseCaseFile, PhaseRobustness},
		{PhaseRobustness, PhaseArbitration},
		{PhaseArbitration, PhaseTerminal},
	}
	for _, pair := range valid {
		if err := ValidateTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("expected valid transition %s->%s, got %v", pair[0], pair[1], err)
		}
	}
}

func TestValidateTransition_InvalidTransitions(t *testing.T) {
	t.Parallel()

	invalid := [][2]Phase{
		{PhaseQuestionIntake, PhaseQuestionAnalysis},
		{PhaseAuditGate, PhaseAuditGate},
		{PhaseQuestionAnalysis, PhaseQuestionIntake},
		{PhaseNullGeneration, PhaseNullGeneration},
		{PhasePersonaExecution, PhasePersonaAllocation},
		{PhaseSynthesis, PhaseTargetedResearch},
		{PhaseAdjudication, PhaseRobustness},
		{PhaseRobustness, PhaseCaseFile},
		{PhaseTerminal, PhaseQuestionIntake},
		{PhaseArbitration, PhaseArbitration},
	}
	for _, pair := range invalid {
		if err := ValidateTransition(pair[0], pair[1]); err == nil {
			t.Fatalf("expected invalid transition %s->%s", pair[0], pair[1])
		}
	}
}

func TestValidateTransition_UnknownPhase(t *testing.T) {
	t.Parallel()

	if err := ValidateTransition(Phase("warmup"), PhaseAuditGate); err == nil {
		t.Fatal("expected error for unknown source phase")
	}
	if err := ValidateTransition(PhaseAuditGate, Phase("")); err == nil {
		t.Fatal("expected error for unknown destination phase")
	}
}

func TestPhases_CoversTransitionTable(t *testing.T) {
	t.Parallel()

	seq := Phases()
	if len(seq) != len(allowedTransitions) {
		t.Fatalf("sequence lists %d phases, transition table has %d", len(seq), len(allowedTransitions))
	}
	for i, p := range seq {
		if err := ValidatePhase(p); err != nil {
			t.Fatalf("sequence entry %d: %v", i, err)
		}
		if got := PhaseIndex(p); got != i {
			t.Fatalf("PhaseIndex(%s) = %d, want %d", p, got, i)
		}
	}
	if seq[0] != PhaseQuestionIntake {
		t.Fatalf("sequence starts at %s, want %s", seq[0], PhaseQuestionIntake)
	}
	if seq[len(seq)-1] != PhaseTerminal {
		t.Fatalf("sequence ends at %s, want %s", seq[len(seq)-1], PhaseTerminal)
	}
}

func TestLoops(t *testing.T) {
	t.Parallel()

	if !Loops(PhasePersonaAllocation) {
		t.Fatal("persona allocation should loop")
	}
	if !Loops(PhaseCaseFile) {
		t.Fatal("case file compilation should loop")
	}
	for _, p := range Phases() {
		if p == PhasePersonaAllocation || p == PhaseCaseFile {
			continue
		}
		if Loops(p) {
			t.Fatalf("phase %s should not loop", p)
		}
	}
}

func TestPhaseIndex_Unknown(t *testing.T) {
	t.Parallel()

	if got := PhaseIndex(Phase("intermission")); got != -1 {
		t.Fatalf("PhaseIndex(unknown) = %d, want -1", got)
	}
}
