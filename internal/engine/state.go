package engine

import (
	"fmt"
	"sync"

	"github.com/veliant/tribunal/internal/evidence"
	"github.com/veliant/tribunal/internal/schema"
	"github.com/veliant/tribunal/internal/worker"
)

// Hypothesis statuses. Every null hypothesis starts untested and is moved by
// exactly one adjudication ruling.
const (
	HypothesisUntested     = "untested"
	HypothesisSupported    = "supported"
	HypothesisRefuted      = "refuted"
	HypothesisInconclusive = "inconclusive"
)

// Hypothesis is one null hypothesis under adjudication.
type Hypothesis struct {
	ID                string   `json:"id"`
	Statement         string   `json:"statement"`
	FalsificationTest string   `json:"falsification_test"`
	Status            string   `json:"status"`
	LinkedFactIDs     []string `json:"linked_fact_ids,omitempty"`
}

// StatusForRuling maps an adjudication ruling onto the hypothesis status it
// implies. Unknown rulings leave the hypothesis untested.
func StatusForRuling(ruling string) string {
	switch ruling {
	case schema.RulingReject:
		return HypothesisRefuted
	case schema.RulingAccept:
		return HypothesisSupported
	case schema.RulingUndetermined:
		return HypothesisInconclusive
	}
	return HypothesisUntested
}

// PersonaAnalysis is one panel seat's position after execution.
type PersonaAnalysis struct {
	PersonaID    string   `json:"persona_id"`
	Position     string   `json:"position"`
	KeyArguments []string `json:"key_arguments,omitempty"`
	Confidence   float64  `json:"confidence"`
	CitedFactIDs []string `json:"cited_fact_ids,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// Adjudication is one ruling over one hypothesis.
type Adjudication struct {
	HypothesisID string   `json:"hypothesis_id"`
	Ruling       string   `json:"ruling"`
	Reasoning    string   `json:"reasoning,omitempty"`
	CitedFactIDs []string `json:"cited_fact_ids,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// DisagreementPoint is one contested topic routed to targeted research.
type DisagreementPoint struct {
	Topic                string `json:"topic"`
	ResearchObjective    string `json:"research_objective"`
	ConfirmatoryQuery    string `json:"confirmatory_query,omitempty"`
	DisconfirmatoryQuery string `json:"disconfirmatory_query,omitempty"`
}

// TrackReport summarizes one research track's pass over the disagreement
// points: what it searched, what it registered, what failed.
type TrackReport struct {
	Track          string             `json:"track"`
	Summary        string             `json:"summary,omitempty"`
	Receipts       []evidence.Receipt `json:"receipts,omitempty"`
	SearchFailures []string           `json:"search_failures,omitempty"`
	Degraded       bool               `json:"degraded,omitempty"`
}

// CoverageOutcome is the engine's reading of the last coverage validation.
type CoverageOutcome struct {
	FactPreservation   float64  `json:"fact_preservation_rate"`
	DivergenceCoverage float64  `json:"divergence_coverage"`
	NullCoverage       float64  `json:"null_coverage"`
	Passed             bool     `json:"passed"`
	Exhausted          bool     `json:"exhausted,omitempty"`
	Gaps               []string `json:"gaps,omitempty"`
}

// RunState holds everything a run accumulates between phases. All access is
// mutex-guarded; the fan-out phases write analyses and adjudications from
// multiple goroutines.
type RunState struct {
	mu sync.Mutex

	runID    string
	question string
	phase    Phase

	personaAttempts  int
	caseFileAttempts int

	registry *evidence.Registry
	trace    *Trace

	analysis      map[string]any
	complexity    float64
	hypotheses    []Hypothesis
	personas      []worker.Persona
	maxSimilarity float64
	analyses      []PersonaAnalysis
	synthesis     map[string]any
	critique      map[string]any
	divergence    float64
	disagreements []DisagreementPoint
	trackReports  []TrackReport
	adjudications []Adjudication
	caseFile      map[string]any
	coverage      CoverageOutcome
	degradations  []string
}

func NewRunState(runID, question string, registry *evidence.Registry, trace *Trace) *RunState {
	return &RunState{
		runID:    runID,
		question: question,
		phase:    PhaseQuestionIntake,
		registry: registry,
		trace:    trace,
	}
}

func (s *RunState) RunID() string    { return s.runID }
func (s *RunState) Question() string { return s.question }

func (s *RunState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// AdvanceTo moves the run to the next phase, rejecting any edge the
// transition table does not declare. The move is traced as a completion of
// the old phase and a start of the new one.
func (s *RunState) AdvanceTo(next Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ValidateTransition(s.phase, next); err != nil {
		return err
	}
	prev := s.phase
	s.phase = next
	s.trace.Append(EventPhaseCompleted, prev, nil)
	if next != prev {
		s.trace.Append(EventPhaseStarted, next, nil)
	}
	return nil
}

// BeginPersonaAttempt counts one pass of the persona allocation loop and
// returns the attempt number, starting at 1.
func (s *RunState) BeginPersonaAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personaAttempts++
	s.trace.Append(EventLoopAttempt, PhasePersonaAllocation, map[string]any{"attempt": s.personaAttempts})
	return s.personaAttempts
}

// BeginCaseFileAttempt counts one pass of the case file loop and returns the
// attempt number, starting at 1.
func (s *RunState) BeginCaseFileAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseFileAttempts++
	s.trace.Append(EventLoopAttempt, PhaseCaseFile, map[string]any{"attempt": s.caseFileAttempts})
	return s.caseFileAttempts
}

// Degrade records a permanent degradation flag. Flags are append-only: a
// later success never clears an earlier degradation.
func (s *RunState) Degrade(phase Phase, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degradations = append(s.degradations, reason)
	s.trace.Append(EventDegradation, phase, map[string]any{"reason": reason})
}

func (s *RunState) Degradations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.degradations...)
}

func (s *RunState) SetAnalysis(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = payload
	if score, ok := schema.Num(payload, "complexity_score"); ok {
		s.complexity = score
	}
}

func (s *RunState) Analysis() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

func (s *RunState) Complexity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complexity
}

// SetHypotheses installs the null hypothesis slate. Hypotheses arriving
// without ids are assigned NH-<n> in slate order.
func (s *RunState) SetHypotheses(hs []Hypothesis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range hs {
		if hs[i].ID == "" {
			hs[i].ID = fmt.Sprintf("NH-%d", i+1)
		}
		if hs[i].Status == "" {
			hs[i].Status = HypothesisUntested
		}
	}
	s.hypotheses = hs
}

func (s *RunState) Hypotheses() []Hypothesis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hypothesis(nil), s.hypotheses...)
}

func (s *RunState) SetPanel(personas []worker.Persona, maxSimilarity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas = personas
	s.maxSimilarity = maxSimilarity
}

func (s *RunState) Panel() ([]worker.Persona, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]worker.Persona(nil), s.personas...), s.maxSimilarity
}

// AddAnalysis records one persona's analysis. A second analysis carrying an
// already-seen persona id replaces the first; seat order is preserved.
func (s *RunState) AddAnalysis(a PersonaAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.analyses {
		if s.analyses[i].PersonaID == a.PersonaID {
			s.analyses[i] = a
			return
		}
	}
	s.analyses = append(s.analyses, a)
}

func (s *RunState) Analyses() []PersonaAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PersonaAnalysis(nil), s.analyses...)
}

func (s *RunState) SetSynthesis(synthesis, critique map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthesis = synthesis
	s.critique = critique
}

func (s *RunState) Synthesis() (map[string]any, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synthesis, s.critique
}

func (s *RunState) SetDisagreements(points []DisagreementPoint, divergence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disagreements = points
	s.divergence = divergence
}

func (s *RunState) Disagreements() []DisagreementPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DisagreementPoint(nil), s.disagreements...)
}

func (s *RunState) Divergence() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divergence
}

func (s *RunState) AddTrackReport(r TrackReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackReports = append(s.trackReports, r)
}

func (s *RunState) TrackReports() []TrackReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TrackReport(nil), s.trackReports...)
}

// AddAdjudication records one ruling and moves the matching hypothesis to
// the status the ruling implies, linking the cited facts to it.
func (s *RunState) AddAdjudication(a Adjudication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjudications = append(s.adjudications, a)
	for i := range s.hypotheses {
		if s.hypotheses[i].ID != a.HypothesisID {
			continue
		}
		s.hypotheses[i].Status = StatusForRuling(a.Ruling)
		s.hypotheses[i].LinkedFactIDs = append(s.hypotheses[i].LinkedFactIDs, a.CitedFactIDs...)
		break
	}
}

func (s *RunState) Adjudications() []Adjudication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Adjudication(nil), s.adjudications...)
}

func (s *RunState) SetCaseFile(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseFile = payload
}

func (s *RunState) CaseFile() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caseFile
}

func (s *RunState) SetCoverage(c CoverageOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coverage = c
}

func (s *RunState) Coverage() CoverageOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coverage
}

func (s *RunState) Registry() *evidence.Registry { return s.registry }

// Scribe builds the narrow handle a research track works through: it can
// append facts under its own track label and read the ledger, nothing else.
func (s *RunState) Scribe(track string) *EvidenceScribe {
	return &EvidenceScribe{track: track, registry: s.registry, trace: s.trace}
}

// EvidenceScribe is the only write path research workers get into the
// evidence ledger. Every registration is traced with its receipt.
type EvidenceScribe struct {
	track    string
	registry *evidence.Registry
	trace    *Trace
}

func (sc *EvidenceScribe) Track() string { return sc.track }

func (sc *EvidenceScribe) Record(statement, source, sourceType string, override *float64) evidence.Receipt {
	receipt := sc.registry.Record(evidence.Claim{
		Statement:  statement,
		Source:     source,
		SourceType: sourceType,
		Override:   override,
		Track:      sc.track,
		RecordedBy: sc.track,
	})
	sc.trace.Append(EventEvidenceRecorded, PhaseTargetedResearch, map[string]any{
		"track":   sc.track,
		"fact_id": receipt.FactID,
		"status":  receipt.Status,
	})
	return receipt
}

func (sc *EvidenceScribe) Facts() []evidence.Fact { return sc.registry.Facts() }

// Snapshot is the exportable view of a run's state, written to state.json
// at the end of every run.
type Snapshot struct {
	RunID            string              `json:"run_id"`
	Question         string              `json:"question"`
	Phase            Phase               `json:"phase"`
	PersonaAttempts  int                 `json:"persona_attempts"`
	CaseFileAttempts int                 `json:"case_file_attempts"`
	Complexity       float64             `json:"complexity_score,omitempty"`
	Analysis         map[string]any      `json:"question_analysis,omitempty"`
	Hypotheses       []Hypothesis        `json:"null_hypotheses,omitempty"`
	Personas         []worker.Persona    `json:"personas,omitempty"`
	MaxSimilarity    float64             `json:"max_pairwise_similarity,omitempty"`
	Analyses         []PersonaAnalysis   `json:"persona_analyses,omitempty"`
	Synthesis        map[string]any      `json:"synthesis,omitempty"`
	Critique         map[string]any      `json:"adversarial_critique,omitempty"`
	Divergence       float64             `json:"divergence_score,omitempty"`
	Disagreements    []DisagreementPoint `json:"disagreement_points,omitempty"`
	TrackReports     []TrackReport       `json:"research_tracks,omitempty"`
	Adjudications    []Adjudication      `json:"adjudications,omitempty"`
	CaseFile         map[string]any      `json:"case_file,omitempty"`
	Coverage         CoverageOutcome     `json:"coverage"`
	Degradations     []string            `json:"degradations,omitempty"`
	Evidence         []evidence.Fact     `json:"evidence,omitempty"`
	EvidenceStats    evidence.Stats      `json:"evidence_stats"`
}

func (s *RunState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RunID:            s.runID,
		Question:         s.question,
		Phase:            s.phase,
		PersonaAttempts:  s.personaAttempts,
		CaseFileAttempts: s.caseFileAttempts,
		Complexity:       s.complexity,
		Analysis:         s.analysis,
		Hypotheses:       append([]Hypothesis(nil), s.hypotheses...),
		Personas:         append([]worker.Persona(nil), s.personas...),
		MaxSimilarity:    s.maxSimilarity,
		Analyses:         append([]PersonaAnalysis(nil), s.analyses...),
		Synthesis:        s.synthesis,
		Critique:         s.critique,
		Divergence:       s.divergence,
		Disagreements:    append([]DisagreementPoint(nil), s.disagreements...),
		TrackReports:     append([]TrackReport(nil), s.trackReports...),
		Adjudications:    append([]Adjudication(nil), s.adjudications...),
		CaseFile:         s.caseFile,
		Coverage:         s.coverage,
		Degradations:     append([]string(nil), s.degradations...),
		Evidence:         s.registry.Facts(),
		EvidenceStats:    s.registry.Stats(),
	}
}
