package engine

import (
	"testing"

	"github.com/veliant/tribunal/internal/evidence"
	"github.com/veliant/tribunal/internal/schema"
)

func newTestState(t *testing.T) *RunState {
	t.Helper()
	return NewRunState("run-test", "is water wet?", evidence.NewRegistry(), NewTrace("run-test"))
}

func TestRunState_AdvanceWalksPipeline(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	if s.Phase() != PhaseQuestionIntake {
		t.Fatalf("initial phase = %s", s.Phase())
	}
	path := Phases()[1:]
	for _, next := range path {
		if next == s.Phase() {
			continue
		}
		if err := s.AdvanceTo(next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if s.Phase() != PhaseTerminal {
		t.Fatalf("final phase = %s", s.Phase())
	}
}

func TestRunState_AdvanceRejectsSkips(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	if err := s.AdvanceTo(PhaseSynthesis); err == nil {
		t.Fatal("expected rejection of intake -> synthesis")
	}
	if s.Phase() != PhaseQuestionIntake {
		t.Fatalf("failed advance moved phase to %s", s.Phase())
	}
}

func TestRunState_HypothesisDefaults(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	s.SetHypotheses([]Hypothesis{
		{Statement: "first", FalsificationTest: "check"},
		{ID: "NH-custom", Statement: "second", FalsificationTest: "check"},
	})
	hs := s.Hypotheses()
	if hs[0].ID != "NH-1" {
		t.Fatalf("auto id = %q, want NH-1", hs[0].ID)
	}
	if hs[1].ID != "NH-custom" {
		t.Fatalf("explicit id overwritten: %q", hs[1].ID)
	}
	for _, h := range hs {
		if h.Status != HypothesisUntested {
			t.Fatalf("hypothesis %s status = %q, want untested", h.ID, h.Status)
		}
	}
}

func TestStatusForRuling(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ruling string
		want   string
	}{
		{schema.RulingReject, HypothesisRefuted},
		{schema.RulingAccept, HypothesisSupported},
		{schema.RulingUndetermined, HypothesisInconclusive},
		{"Maybe", HypothesisUntested},
	}
	for _, tc := range cases {
		if got := StatusForRuling(tc.ruling); got != tc.want {
			t.Fatalf("StatusForRuling(%q) = %q, want %q", tc.ruling, got, tc.want)
		}
	}
}

func TestRunState_AdjudicationMovesHypothesis(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	s.SetHypotheses([]Hypothesis{{ID: "NH-1", Statement: "null", FalsificationTest: "test"}})
	s.AddAdjudication(Adjudication{
		HypothesisID: "NH-1",
		Ruling:       schema.RulingReject,
		CitedFactIDs: []string{"CER-20260314-001"},
	})

	hs := s.Hypotheses()
	if hs[0].Status != HypothesisRefuted {
		t.Fatalf("status = %q, want refuted", hs[0].Status)
	}
	if len(hs[0].LinkedFactIDs) != 1 || hs[0].LinkedFactIDs[0] != "CER-20260314-001" {
		t.Fatalf("linked facts = %v", hs[0].LinkedFactIDs)
	}
	if len(s.Adjudications()) != 1 {
		t.Fatalf("adjudications = %d", len(s.Adjudications()))
	}
}

func TestRunState_AddAnalysisReplacesDuplicateSeat(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	s.AddAnalysis(PersonaAnalysis{PersonaID: "persona-1", Position: "early draft"})
	s.AddAnalysis(PersonaAnalysis{PersonaID: "persona-2", Position: "other seat"})
	s.AddAnalysis(PersonaAnalysis{PersonaID: "persona-1", Position: "final position"})

	got := s.Analyses()
	if len(got) != 2 {
		t.Fatalf("got %d analyses, want 2", len(got))
	}
	if got[0].PersonaID != "persona-1" || got[0].Position != "final position" {
		t.Fatalf("seat order or replacement broken: %+v", got[0])
	}
}

func TestRunState_DegradationsAccumulate(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	s.Degrade(PhasePersonaExecution, "persona-2 output failed validation after retries")
	s.Degrade(PhaseTargetedResearch, "confirmatory search degraded")

	got := s.Degradations()
	if len(got) != 2 {
		t.Fatalf("got %d degradations, want 2", len(got))
	}
}

func TestRunState_ScribeRecordsUnderTrack(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	scribe := s.Scribe("confirmatory")
	receipt := scribe.Record("the sky is blue on clear days", "https://example.org", evidence.SourceTypePrimary, nil)
	if receipt.Failed() {
		t.Fatalf("record failed: %s", receipt.Error)
	}
	facts := scribe.Facts()
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	if facts[0].Track != "confirmatory" {
		t.Fatalf("track = %q", facts[0].Track)
	}
}

func TestRunState_SnapshotCarriesEvidence(t *testing.T) {
	t.Parallel()

	s := newTestState(t)
	s.Scribe("confirmatory").Record("fact one", "src", evidence.SourceTypeSecondary, nil)
	s.SetCoverage(CoverageOutcome{FactPreservation: 0.9, DivergenceCoverage: 1, NullCoverage: 1, Passed: true})

	snap := s.Snapshot()
	if snap.RunID != "run-test" {
		t.Fatalf("run id = %q", snap.RunID)
	}
	if len(snap.Evidence) != 1 {
		t.Fatalf("snapshot evidence = %d facts", len(snap.Evidence))
	}
	if snap.EvidenceStats.Count != 1 {
		t.Fatalf("stats count = %d", snap.EvidenceStats.Count)
	}
	if !snap.Coverage.Passed {
		t.Fatal("coverage not carried")
	}
}
