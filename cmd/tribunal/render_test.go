package main

import (
	"strings"
	"testing"
	"time"

	"github.com/veliant/tribunal/internal/engine"
	"github.com/veliant/tribunal/internal/evidence"
	"github.com/veliant/tribunal/internal/report"
	"github.com/veliant/tribunal/internal/verdict"
)

func testPaths() report.RunPaths {
	return report.RunPaths{
		Root:     "runs/run-cli",
		Trace:    "runs/run-cli/trace.jsonl",
		State:    "runs/run-cli/state.json",
		Decision: "runs/run-cli/decision.md",
	}
}

func TestRenderDecisionCompleted(t *testing.T) {
	t.Parallel()

	result := &engine.Result{
		Decision: verdict.Decision{
			RunID:             "run-cli",
			Question:          "Did the rollout cause the regression?",
			Outcome:           verdict.OutcomeCompleted,
			Verdict:           "The rollout is the most plausible cause.",
			Confidence:        84,
			ClaimedConfidence: 99,
			Robustness: verdict.Metrics{
				Score:             0.8125,
				Interpretation:    verdict.Robust,
				ConfidenceCeiling: 95,
				CapsApplied:       []string{"degraded outputs cap 0.70"},
			},
			GeneratedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		},
		State: engine.Snapshot{
			Degradations:  []string{"persona loop exhausted"},
			EvidenceStats: evidence.Stats{Count: 3, MeanCredibility: 0.85},
		},
	}

	out := renderDecision(result, testPaths())
	for _, want := range []string{
		"VERDICT · run-cli",
		"The rollout is the most plausible cause.",
		"84.0% (claimed 99.0%, ceiling 95%)",
		"0.8125",
		"degraded outputs cap 0.70",
		"runs/run-cli/decision.md",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("completed brief missing %q:\n%s", want, out)
		}
	}
}

func TestRenderDecisionBlocked(t *testing.T) {
	t.Parallel()

	result := &engine.Result{
		Decision: verdict.Decision{
			RunID:       "run-cli",
			Outcome:     verdict.OutcomeBlocked,
			BlockReason: "question requests fabricating records",
		},
	}

	out := renderDecision(result, testPaths())
	if !strings.Contains(out, "BLOCKED") {
		t.Fatalf("blocked brief missing headline:\n%s", out)
	}
	if !strings.Contains(out, "question requests fabricating records") {
		t.Fatalf("blocked brief missing reason:\n%s", out)
	}
	if strings.Contains(out, "confidence") {
		t.Fatalf("blocked brief must not carry confidence lines:\n%s", out)
	}
}

func TestRenderDecisionAwaitingClarification(t *testing.T) {
	t.Parallel()

	result := &engine.Result{
		Decision: verdict.Decision{
			RunID:               "run-cli",
			Outcome:             verdict.OutcomeAwaitingClarification,
			ClarificationPrompt: "Which rollout, March or April?",
		},
	}

	out := renderDecision(result, testPaths())
	if !strings.Contains(out, "CLARIFICATION NEEDED") {
		t.Fatalf("clarification brief missing headline:\n%s", out)
	}
	if !strings.Contains(out, "Which rollout, March or April?") {
		t.Fatalf("clarification brief missing prompt:\n%s", out)
	}
}

func TestRenderRunHeader(t *testing.T) {
	t.Parallel()

	out := renderRunHeader("run-cli", "Is the cache to blame?", "runs/run-cli")
	for _, want := range []string{"TRIBUNAL · run-cli", "Is the cache to blame?", "runs/run-cli"} {
		if !strings.Contains(out, want) {
			t.Fatalf("run header missing %q:\n%s", want, out)
		}
	}
}

func TestWatchChecklistMarkers(t *testing.T) {
	t.Parallel()

	m := newWatchModel("runs/run-cli/trace.jsonl", time.Second, false)
	events := []engine.TraceEvent{
		traceEvent(1, engine.EventRunStarted, engine.PhaseQuestionIntake, nil),
		traceEvent(2, engine.EventPhaseCompleted, engine.PhaseQuestionIntake, nil),
		traceEvent(3, engine.EventPhaseStarted, engine.PhasePersonaAllocation, nil),
		traceEvent(4, engine.EventLoopAttempt, engine.PhasePersonaAllocation, map[string]any{"attempt": float64(2)}),
	}
	out := m.renderChecklist(summarizeTrace(events))

	if !strings.Contains(out, "[x] question_intake") {
		t.Fatalf("checklist missing completed marker:\n%s", out)
	}
	if !strings.Contains(out, "[ ] synthesis") {
		t.Fatalf("checklist missing pending marker:\n%s", out)
	}
	if !strings.Contains(out, "(attempt 2)") {
		t.Fatalf("checklist missing loop attempt annotation:\n%s", out)
	}
	if strings.Contains(out, "[x] persona_allocation") {
		t.Fatalf("active loop phase must not be marked complete:\n%s", out)
	}
}

func TestWatchViewWaitingForTrace(t *testing.T) {
	t.Parallel()

	m := newWatchModel("runs/missing/trace.jsonl", 0, false)
	if m.refresh != time.Second {
		t.Fatalf("refresh must default to 1s, got %s", m.refresh)
	}
	out := m.View()
	if !strings.Contains(out, "waiting for trace") {
		t.Fatalf("view must report waiting state:\n%s", out)
	}
}
