// Package engine drives a deliberation run through its fixed phase pipeline:
// gate the question, decompose it, raise null hypotheses, execute a divergent
// persona panel, research the disagreements, adjudicate the nulls and arbitrate
// a final verdict whose confidence is clamped to the computed robustness.
//
// The engine owns phase ordering, loop ceilings, retry policy and evidence
// integrity. Workers stay opaque: they receive accumulated context and return
// text that must satisfy the contract of their output key.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veliant/tribunal/internal/config"
	"github.com/veliant/tribunal/internal/evidence"
	"github.com/veliant/tribunal/internal/research"
	"github.com/veliant/tribunal/internal/schema"
	"github.com/veliant/tribunal/internal/verdict"
	"github.com/veliant/tribunal/internal/worker"
)

// Engine builds and drives runs. One Engine drives one run at a time;
// construct one per question.
type Engine struct {
	cfg      config.Config
	client   worker.Client
	searcher research.Searcher
	sink     func(TraceEvent) error
	now      func() time.Time
	runID    string
}

type Option func(*Engine)

// WithClient replaces the worker client. Tests install a scripted client.
func WithClient(c worker.Client) Option { return func(e *Engine) { e.client = c } }

// WithSearcher replaces the search backend. A nil searcher disables external
// research; the tracks still run on registered evidence alone.
func WithSearcher(s research.Searcher) Option { return func(e *Engine) { e.searcher = s } }

// WithTraceSink mirrors every trace event, typically to a JSONL file.
func WithTraceSink(sink func(TraceEvent) error) Option { return func(e *Engine) { e.sink = sink } }

// WithClock overrides the engine clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunID pins the run id instead of minting one.
func WithRunID(id string) Option { return func(e *Engine) { e.runID = id } }

func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		if cfg.Worker.Offline {
			e.client = worker.NewScripted()
		} else {
			e.client = worker.NewHTTPClient(
				cfg.Worker.Endpoints,
				cfg.Worker.Model,
				cfg.Worker.APIKey,
				time.Duration(cfg.Worker.TimeoutSeconds)*time.Second,
			)
		}
	}
	if e.searcher == nil && cfg.Research.Enabled && !cfg.Worker.Offline {
		throttle := research.NewThrottle(time.Duration(cfg.Research.MinIntervalMillis) * time.Millisecond)
		e.searcher = research.NewBraveClient(
			cfg.Research.Endpoint,
			cfg.Research.APIKey,
			time.Duration(cfg.Research.TimeoutSeconds)*time.Second,
			throttle,
		)
	}
	if e.runID == "" {
		e.runID = NewRunID()
	}
	return e, nil
}

// NewRunID mints a short unique run identifier.
func NewRunID() string {
	return "run-" + strings.Split(uuid.NewString(), "-")[0]
}

// RunID reports the id the next Run will carry.
func (e *Engine) RunID() string { return e.runID }

func (e *Engine) retries() int {
	if e.cfg.Engine.ValidationRetries < 0 {
		return 0
	}
	return e.cfg.Engine.ValidationRetries
}

// Result is everything a finished run leaves behind.
type Result struct {
	Decision verdict.Decision
	State    Snapshot
	Trace    []TraceEvent
}

// run carries the per-run members so an Engine value stays reusable.
type run struct {
	eng      *Engine
	id       string
	state    *RunState
	trace    *Trace
	registry *evidence.Registry
}

func roleSpec(role string) (worker.Spec, error) {
	spec, ok := worker.For(role)
	if !ok {
		return worker.Spec{}, fmt.Errorf("no roster entry for role %q", role)
	}
	return spec, nil
}

// Run executes the full pipeline for one question. Questions are collapsed
// to single-spaced text and must be non-empty. The error return covers
// context cancellation, configuration faults and structural integrity
// breaks; everything else degrades the run instead of failing it.
func (e *Engine) Run(ctx context.Context, question string) (*Result, error) {
	question = strings.Join(strings.Fields(question), " ")
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	trace := NewTrace(e.runID).WithClock(e.now)
	if e.sink != nil {
		trace = trace.WithSink(e.sink)
	}
	registry := evidence.NewRegistry().
		WithClock(e.now).
		WithCredibility(e.cfg.Evidence.PrimaryCredibility, e.cfg.Evidence.SecondaryCredibility, e.cfg.Evidence.TertiaryCredibility).
		WithLimits(e.cfg.Evidence.StatementMaxChars, e.cfg.Evidence.SourceMaxChars)
	state := NewRunState(e.runID, question, registry, trace)
	r := &run{eng: e, id: e.runID, state: state, trace: trace, registry: registry}

	trace.Append(EventRunStarted, PhaseQuestionIntake, map[string]any{"question": question})
	decision, err := r.execute(ctx)
	if err != nil {
		return nil, err
	}
	trace.Append(EventRunCompleted, PhaseTerminal, map[string]any{"outcome": decision.Outcome})

	return &Result{
		Decision: decision,
		State:    state.Snapshot(),
		Trace:    trace.Events(),
	}, nil
}

func (r *run) execute(ctx context.Context) (verdict.Decision, error) {
	if err := r.state.AdvanceTo(PhaseAuditGate); err != nil {
		return verdict.Decision{}, err
	}
	gate, err := r.auditGate(ctx)
	if err != nil {
		return verdict.Decision{}, err
	}
	switch gate.Status {
	case GateBlock:
		if err := r.state.AdvanceTo(PhaseTerminal); err != nil {
			return verdict.Decision{}, err
		}
		return verdict.Blocked(r.id, r.state.Question(), gate.Reasoning, r.eng.now()), nil
	case GateClarify:
		if err := r.state.AdvanceTo(PhaseTerminal); err != nil {
			return verdict.Decision{}, err
		}
		return verdict.AwaitingClarification(r.id, r.state.Question(), gate.ClarificationPrompt, r.eng.now()), nil
	}

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseQuestionAnalysis, r.analyzeQuestion},
		{PhaseNullGeneration, r.generateNulls},
		{PhasePersonaAllocation, r.allocatePanel},
		{PhasePersonaExecution, r.executePanel},
		{PhaseSynthesis, r.synthesize},
		{PhaseDisagreement, r.analyzeDisagreements},
		{PhaseTargetedResearch, r.research},
		{PhaseAdjudication, r.adjudicate},
		{PhaseCaseFile, r.compileCaseFile},
	}
	for _, step := range steps {
		if err := r.state.AdvanceTo(step.phase); err != nil {
			return verdict.Decision{}, err
		}
		if err := step.fn(ctx); err != nil {
			return verdict.Decision{}, err
		}
	}

	if err := r.state.AdvanceTo(PhaseRobustness); err != nil {
		return verdict.Decision{}, err
	}
	metrics := r.computeRobustness()

	if err := r.state.AdvanceTo(PhaseArbitration); err != nil {
		return verdict.Decision{}, err
	}
	decision, err := r.arbitrate(ctx, metrics)
	if err != nil {
		return verdict.Decision{}, err
	}
	if err := r.state.AdvanceTo(PhaseTerminal); err != nil {
		return verdict.Decision{}, err
	}
	return decision, nil
}

func (r *run) auditGate(ctx context.Context) (GateDecision, error) {
	spec, err := roleSpec(worker.RoleAuditor)
	if err != nil {
		return GateDecision{}, err
	}
	out, err := r.invokeAccepting(ctx, spec, r.questionContext())
	if err != nil {
		return GateDecision{}, err
	}
	gate := EvaluateGate(out)
	r.trace.Append(EventGateDecision, PhaseAuditGate, map[string]any{
		"status":    gate.Status,
		"reasoning": gate.Reasoning,
	})
	return gate, nil
}

func (r *run) analyzeQuestion(ctx context.Context) error {
	spec, err := roleSpec(worker.RoleQuestionAnalyst)
	if err != nil {
		return err
	}
	out, err := r.invokeAccepting(ctx, spec, r.questionContext())
	if err != nil {
		return err
	}
	r.state.SetAnalysis(out.Payload)
	return nil
}

func (r *run) generateNulls(ctx context.Context) error {
	spec, err := roleSpec(worker.RoleNullGenerator)
	if err != nil {
		return err
	}
	out, err := r.invokeAccepting(ctx, spec, r.analysisContext())
	if err != nil {
		return err
	}
	r.state.SetHypotheses(parseHypotheses(out.Payload))
	return nil
}

// allocatePanel runs the bounded allocation loop: allocate a panel sized off
// complexity, have the validator score pairwise similarity, and repeat with
// corrective feedback until the panel is approved or the loop exhausts. An
// exhausted loop keeps the last panel and degrades the run.
func (r *run) allocatePanel(ctx context.Context) error {
	allocSpec, err := roleSpec(worker.RolePersonaAllocator)
	if err != nil {
		return err
	}
	valSpec, err := roleSpec(worker.RolePersonaValidator)
	if err != nil {
		return err
	}
	ceiling := r.eng.cfg.Engine.PersonaLoopCeiling
	if ceiling < 1 {
		ceiling = 1
	}
	size := r.eng.cfg.PanelSizeFor(r.state.Complexity())

	var feedback string
	for {
		attempt := r.state.BeginPersonaAttempt()

		allocOut, err := r.invokeAccepting(ctx, allocSpec, r.allocationContext(size, feedback))
		if err != nil {
			return err
		}
		personas := parsePersonas(allocOut.Payload)

		valOut, err := r.invokeAccepting(ctx, valSpec, r.validationContext(personas))
		if err != nil {
			return err
		}
		maxSim := maxSimilarity(valOut.Payload)
		r.state.SetPanel(personas, maxSim)

		approved := len(personas) > 0 &&
			schema.Str(valOut.Payload, "validation_status") == schema.StatusApproved &&
			maxSim <= r.eng.cfg.Panel.SimilarityMax
		if approved {
			return nil
		}
		if attempt >= ceiling {
			r.trace.Append(EventLoopExhausted, PhasePersonaAllocation, map[string]any{"attempts": attempt})
			r.state.Degrade(PhasePersonaAllocation, fmt.Sprintf(
				"persona allocation exhausted %d attempts; proceeding with last panel (max similarity %.2f)",
				attempt, maxSim))
			return nil
		}
		feedback = allocationFeedback(valOut.Payload, maxSim, r.eng.cfg.Panel.SimilarityMax)
	}
}

func (r *run) executePanel(ctx context.Context) error {
	personas, _ := r.state.Panel()
	msgs := r.personaContext()
	calls := make([]invocation, 0, len(personas))
	for _, p := range personas {
		calls = append(calls, invocation{spec: worker.PersonaSpec(p), msgs: msgs})
	}
	outs, err := r.fanOut(ctx, calls)
	if err != nil {
		return err
	}
	for i, out := range outs {
		confidence, _ := schema.Num(out.Payload, "confidence")
		analysis := PersonaAnalysis{
			PersonaID:    strings.TrimSpace(schema.Str(out.Payload, "persona_id")),
			Position:     schema.Str(out.Payload, "position"),
			KeyArguments: schema.Strings(out.Payload, "key_arguments"),
			Confidence:   confidence,
			CitedFactIDs: schema.Strings(out.Payload, "cited_fact_ids"),
			Degraded:     !out.Valid,
		}
		if analysis.PersonaID == "" {
			analysis.PersonaID = personas[i].ID
		}
		r.state.AddAnalysis(analysis)
	}
	return nil
}

func (r *run) synthesize(ctx context.Context) error {
	synSpec, err := roleSpec(worker.RoleSynthesist)
	if err != nil {
		return err
	}
	advSpec, err := roleSpec(worker.RoleAdversary)
	if err != nil {
		return err
	}
	msgs := r.panelRecordContext()
	outs, err := r.fanOut(ctx, []invocation{
		{spec: synSpec, msgs: msgs},
		{spec: advSpec, msgs: msgs},
	})
	if err != nil {
		return err
	}
	r.state.SetSynthesis(outs[0].Payload, outs[1].Payload)
	return nil
}

func (r *run) analyzeDisagreements(ctx context.Context) error {
	spec, err := roleSpec(worker.RoleDisagreementAnalyst)
	if err != nil {
		return err
	}
	out, err := r.invokeAccepting(ctx, spec, r.synthesisContext())
	if err != nil {
		return err
	}
	divergence, _ := schema.Num(out.Payload, "divergence_score")
	r.state.SetDisagreements(parsePoints(out.Payload), divergence)
	return nil
}

// research runs the confirmatory and disconfirmatory tracks concurrently.
// Both tracks share one throttled searcher and one evidence registry.
func (r *run) research(ctx context.Context) error {
	points := r.state.Disagreements()
	g, gctx := errgroup.WithContext(ctx)
	for _, role := range []string{worker.RoleConfirmatory, worker.RoleDisconfirmatory} {
		role := role
		g.Go(func() error {
			report, err := r.runResearchTrack(gctx, role, points)
			if err != nil {
				return err
			}
			r.state.AddTrackReport(report)
			return nil
		})
	}
	return g.Wait()
}

// adjudicate fans one adjudicator out per null hypothesis. Every cited fact
// id must exist in the registry; an unknown id is a structural break that
// aborts the run.
func (r *run) adjudicate(ctx context.Context) error {
	spec, err := roleSpec(worker.RoleAdjudicator)
	if err != nil {
		return err
	}
	hypotheses := r.state.Hypotheses()
	calls := make([]invocation, 0, len(hypotheses))
	for _, h := range hypotheses {
		calls = append(calls, invocation{spec: spec, msgs: r.adjudicationContext(h)})
	}
	outs, err := r.fanOut(ctx, calls)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(hypotheses))
	for _, h := range hypotheses {
		known[h.ID] = struct{}{}
	}
	for i, out := range outs {
		adj := Adjudication{
			HypothesisID: strings.TrimSpace(schema.Str(out.Payload, "hypothesis_id")),
			Ruling:       schema.Str(out.Payload, "ruling"),
			Reasoning:    schema.Str(out.Payload, "reasoning"),
			CitedFactIDs: schema.Strings(out.Payload, "cited_fact_ids"),
			Degraded:     !out.Valid,
		}
		if _, ok := known[adj.HypothesisID]; !ok {
			adj.HypothesisID = hypotheses[i].ID
		}
		var missing []string
		for _, id := range adj.CitedFactIDs {
			if !r.registry.Has(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &StructuralIntegrityError{Stage: "adjudication", Subject: adj.HypothesisID, Missing: missing}
		}
		r.state.AddAdjudication(adj)
	}
	return nil
}

// compileCaseFile runs the bounded compile-and-validate loop. The coverage
// floors are the engine's, not the validator's: a validator claiming a pass
// below the floors does not pass. Exhaustion keeps the last case file and
// degrades the run.
func (r *run) compileCaseFile(ctx context.Context) error {
	compileSpec, err := roleSpec(worker.RoleCaseCompiler)
	if err != nil {
		return err
	}
	covSpec, err := roleSpec(worker.RoleCoverageValidator)
	if err != nil {
		return err
	}
	ceiling := r.eng.cfg.Engine.CaseFileLoopCeiling
	if ceiling < 1 {
		ceiling = 1
	}

	var feedback string
	for {
		attempt := r.state.BeginCaseFileAttempt()

		caseOut, err := r.invokeAccepting(ctx, compileSpec, r.caseFileContext(feedback))
		if err != nil {
			return err
		}
		r.state.SetCaseFile(caseOut.Payload)

		covOut, err := r.invokeAccepting(ctx, covSpec, r.coverageContext())
		if err != nil {
			return err
		}
		coverage := r.coverageOutcome(covOut)
		r.state.SetCoverage(coverage)
		if coverage.Passed {
			return nil
		}
		if attempt >= ceiling {
			coverage.Exhausted = true
			r.state.SetCoverage(coverage)
			r.trace.Append(EventLoopExhausted, PhaseCaseFile, map[string]any{"attempts": attempt})
			r.state.Degrade(PhaseCaseFile, fmt.Sprintf(
				"case file coverage exhausted %d attempts; proceeding with last compilation", attempt))
			return nil
		}
		feedback = coverageFeedback(coverage)
	}
}

func (r *run) coverageOutcome(out schema.Outcome) CoverageOutcome {
	fp, _ := schema.Num(out.Payload, "fact_preservation_rate")
	dc, _ := schema.Num(out.Payload, "divergence_coverage")
	nc, _ := schema.Num(out.Payload, "null_coverage")
	floors := r.eng.cfg.Coverage
	return CoverageOutcome{
		FactPreservation:   fp,
		DivergenceCoverage: dc,
		NullCoverage:       nc,
		Gaps:               schema.Strings(out.Payload, "gaps"),
		Passed: out.Valid &&
			schema.Bool(out.Payload, "passed") &&
			fp >= floors.FactPreservationMin &&
			dc >= floors.DivergenceCoverageMin &&
			nc >= floors.NullCoverageMin,
	}
}

// computeRobustness derives the decision robustness metrics from the run
// record. No worker is consulted; the same state always scores the same.
func (r *run) computeRobustness() verdict.Metrics {
	_, maxSim := r.state.Panel()
	coverage := r.state.Coverage()

	cited := map[string]struct{}{}
	rulings := make([]string, 0)
	for _, adj := range r.state.Adjudications() {
		rulings = append(rulings, adj.Ruling)
		for _, id := range adj.CitedFactIDs {
			cited[id] = struct{}{}
		}
	}
	var meanCited float64
	if len(cited) > 0 {
		var sum float64
		for id := range cited {
			if fact, ok := r.registry.Get(id); ok {
				sum += fact.Credibility
			}
		}
		meanCited = sum / float64(len(cited))
	}

	metrics := verdict.Compute(verdict.Inputs{
		MeanCitedCredibility:  meanCited,
		MaxPairwiseSimilarity: maxSim,
		SimilarityMax:         r.eng.cfg.Panel.SimilarityMax,
		Rulings:               rulings,
		FactPreservation:      coverage.FactPreservation,
		DivergenceCoverage:    coverage.DivergenceCoverage,
		NullCoverage:          coverage.NullCoverage,
		CoverageExhausted:     coverage.Exhausted,
		Degradations:          r.state.Degradations(),
	})
	r.trace.Append(EventRobustnessComputed, PhaseRobustness, map[string]any{
		"score":              metrics.Score,
		"interpretation":     metrics.Interpretation,
		"confidence_ceiling": metrics.ConfidenceCeiling,
		"caps_applied":       metrics.CapsApplied,
	})
	return metrics
}

func (r *run) arbitrate(ctx context.Context, metrics verdict.Metrics) (verdict.Decision, error) {
	spec, err := roleSpec(worker.RoleArbiter)
	if err != nil {
		return verdict.Decision{}, err
	}
	out, err := r.invokeAccepting(ctx, spec, r.arbitrationContext(metrics))
	if err != nil {
		return verdict.Decision{}, err
	}

	// The verdict may only cite facts the registry actually minted; anything
	// else is dropped and traced.
	if out.Payload != nil {
		cited := schema.Strings(out.Payload, "cited_fact_ids")
		kept := make([]any, 0, len(cited))
		dropped := make([]string, 0)
		for _, id := range cited {
			if r.registry.Has(id) {
				kept = append(kept, id)
			} else {
				dropped = append(dropped, id)
			}
		}
		if len(dropped) > 0 {
			out.Payload["cited_fact_ids"] = kept
			r.trace.Append(EventCitationDropped, PhaseArbitration, map[string]any{"dropped": dropped})
		}
	}
	return verdict.Completed(r.id, r.state.Question(), out.Payload, metrics, r.eng.now()), nil
}
