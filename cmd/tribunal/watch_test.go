package main

import (
	"testing"
	"time"

	"github.com/veliant/tribunal/internal/engine"
)

func traceEvent(seq int64, eventType string, phase engine.Phase, payload map[string]any) engine.TraceEvent {
	return engine.TraceEvent{
		EventID: "evt-test",
		RunID:   "run-watch",
		Seq:     seq,
		TS:      time.Date(2026, 3, 14, 12, 0, int(seq), 0, time.UTC),
		Type:    eventType,
		Phase:   phase,
		Payload: payload,
	}
}

func TestSummarizeTraceMidRun(t *testing.T) {
	t.Parallel()

	events := []engine.TraceEvent{
		traceEvent(1, engine.EventRunStarted, engine.PhaseQuestionIntake, nil),
		traceEvent(2, engine.EventPhaseCompleted, engine.PhaseQuestionIntake, nil),
		traceEvent(3, engine.EventPhaseStarted, engine.PhaseAuditGate, nil),
		traceEvent(4, engine.EventGateDecision, engine.PhaseAuditGate, map[string]any{"status": "proceed"}),
		traceEvent(5, engine.EventPhaseCompleted, engine.PhaseAuditGate, nil),
		traceEvent(6, engine.EventPhaseStarted, engine.PhaseQuestionAnalysis, nil),
		traceEvent(7, engine.EventValidationRetry, engine.PhaseQuestionAnalysis, nil),
	}

	p := summarizeTrace(events)
	if p.runID != "run-watch" {
		t.Fatalf("unexpected run id: %s", p.runID)
	}
	if p.done {
		t.Fatalf("run must not be done mid-pipeline")
	}
	if p.active != engine.PhaseQuestionAnalysis {
		t.Fatalf("active phase: got %s want %s", p.active, engine.PhaseQuestionAnalysis)
	}
	if !p.completed[engine.PhaseQuestionIntake] || !p.completed[engine.PhaseAuditGate] {
		t.Fatalf("expected intake and gate to be completed: %v", p.completed)
	}
	if p.completed[engine.PhaseQuestionAnalysis] {
		t.Fatalf("active phase must not be completed yet")
	}
	if p.gateStatus != "proceed" {
		t.Fatalf("gate status: got %q want proceed", p.gateStatus)
	}
	if p.retries != 1 {
		t.Fatalf("retries: got %d want 1", p.retries)
	}
}

func TestSummarizeTraceCountersAndLoops(t *testing.T) {
	t.Parallel()

	events := []engine.TraceEvent{
		traceEvent(1, engine.EventRunStarted, engine.PhaseQuestionIntake, nil),
		traceEvent(2, engine.EventPhaseStarted, engine.PhasePersonaAllocation, nil),
		// JSON round-trips numbers as float64, which is what ReadTrace yields.
		traceEvent(3, engine.EventLoopAttempt, engine.PhasePersonaAllocation, map[string]any{"attempt": float64(1)}),
		traceEvent(4, engine.EventLoopAttempt, engine.PhasePersonaAllocation, map[string]any{"attempt": float64(2)}),
		traceEvent(5, engine.EventLoopExhausted, engine.PhasePersonaAllocation, nil),
		traceEvent(6, engine.EventDegradation, engine.PhasePersonaAllocation, map[string]any{"reason": "panel kept overlapping"}),
		traceEvent(7, engine.EventEvidenceRecorded, engine.PhaseTargetedResearch, nil),
		traceEvent(8, engine.EventEvidenceRecorded, engine.PhaseTargetedResearch, nil),
	}

	p := summarizeTrace(events)
	if got := p.loopAttempts[engine.PhasePersonaAllocation]; got != 2 {
		t.Fatalf("loop attempts: got %d want 2", got)
	}
	if p.exhausted != 1 {
		t.Fatalf("exhausted: got %d want 1", p.exhausted)
	}
	if p.degradations != 1 {
		t.Fatalf("degradations: got %d want 1", p.degradations)
	}
	if p.evidence != 2 {
		t.Fatalf("evidence: got %d want 2", p.evidence)
	}
	if len(p.tail) != 6 {
		t.Fatalf("tail length: got %d want 6", len(p.tail))
	}
}

func TestSummarizeTraceCompletedRun(t *testing.T) {
	t.Parallel()

	events := []engine.TraceEvent{
		traceEvent(1, engine.EventRunStarted, engine.PhaseQuestionIntake, nil),
		traceEvent(2, engine.EventPhaseStarted, engine.PhaseAuditGate, nil),
		traceEvent(3, engine.EventGateDecision, engine.PhaseAuditGate, map[string]any{"status": "block"}),
		traceEvent(4, engine.EventPhaseStarted, engine.PhaseTerminal, nil),
		traceEvent(5, engine.EventRunCompleted, engine.PhaseTerminal, map[string]any{"outcome": "blocked"}),
	}

	p := summarizeTrace(events)
	if !p.done {
		t.Fatalf("expected done after run_completed")
	}
	if p.outcome != "blocked" {
		t.Fatalf("outcome: got %q want blocked", p.outcome)
	}
	if p.active != engine.PhaseTerminal || !p.completed[engine.PhaseTerminal] {
		t.Fatalf("terminal phase must be active and completed")
	}
	if p.gateStatus != "block" {
		t.Fatalf("gate status: got %q want block", p.gateStatus)
	}
}

func TestSummarizeTraceEmpty(t *testing.T) {
	t.Parallel()

	p := summarizeTrace(nil)
	if p.done || p.runID != "" || len(p.tail) != 0 {
		t.Fatalf("empty trace must summarize to zero progress: %+v", p)
	}
}
