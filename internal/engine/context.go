package engine

import (
	"fmt"
	"strings"

	"github.com/veliant/tribunal/internal/schema"
	"github.com/veliant/tribunal/internal/verdict"
	"github.com/veliant/tribunal/internal/worker"
)

// Context builders. Each phase hands its worker a fresh rendering of the run
// record rather than the raw conversation so far; what a role sees is exactly
// what its stage needs.

func userMessage(content string) []worker.Message {
	return []worker.Message{{Role: "user", Content: content}}
}

func (r *run) questionLine(b *strings.Builder) {
	fmt.Fprintf(b, "Question under deliberation: %s\n", r.state.Question())
}

func (r *run) questionContext() []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	return userMessage(b.String())
}

func (r *run) analysisContext() []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.analysisBlock(&b)
	return userMessage(b.String())
}

func (r *run) allocationContext(size int, feedback string) []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.analysisBlock(&b)
	r.hypothesesBlock(&b)
	fmt.Fprintf(&b, "Allocate exactly %d personas for this panel.\n", size)
	if feedback != "" {
		fmt.Fprintf(&b, "Previous attempt feedback: %s\n", feedback)
	}
	return userMessage(b.String())
}

func (r *run) validationContext(personas []worker.Persona) []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	b.WriteString("Proposed panel:\n")
	for _, p := range personas {
		fmt.Fprintf(&b, "- %s: %s", p.ID, p.Framework)
		if len(p.DivergenceAxes) > 0 {
			fmt.Fprintf(&b, " (axes: %s)", strings.Join(p.DivergenceAxes, ", "))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Approve only if every pairwise similarity stays at or below %.2f.\n", r.eng.cfg.Panel.SimilarityMax)
	return userMessage(b.String())
}

func (r *run) personaContext() []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.analysisBlock(&b)
	r.hypothesesBlock(&b)
	r.evidenceBlock(&b, 0)
	return userMessage(b.String())
}

func (r *run) panelRecordContext() []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.hypothesesBlock(&b)
	r.analysesBlock(&b)
	return userMessage(b.String())
}

func (r *run) synthesisContext() []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.analysesBlock(&b)
	r.synthesisBlock(&b)
	return userMessage(b.String())
}

func (r *run) trackContext(track string, points []DisagreementPoint, findings string) []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	fmt.Fprintf(&b, "Research track: %s\n", track)
	if len(points) == 0 {
		b.WriteString("No disagreement points were identified; corroborate or contradict the panel's convergent answer.\n")
	} else {
		b.WriteString("Disagreement points under research:\n")
		for _, p := range points {
			fmt.Fprintf(&b, "- %s: %s\n", p.Topic, p.ResearchObjective)
		}
	}
	if findings != "" {
		b.WriteString("Search findings:\n")
		b.WriteString(findings)
	} else {
		b.WriteString("No external search results are available; work from the deliberation record.\n")
	}
	return userMessage(b.String())
}

func (r *run) adjudicationContext(h Hypothesis) []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	fmt.Fprintf(&b, "Hypothesis under review: %s\n", h.ID)
	fmt.Fprintf(&b, "Statement: %s\n", h.Statement)
	fmt.Fprintf(&b, "Falsification test: %s\n", h.FalsificationTest)
	for _, tr := range r.state.TrackReports() {
		if tr.Summary != "" {
			fmt.Fprintf(&b, "%s track summary: %s\n", tr.Track, tr.Summary)
		}
	}
	r.evidenceBlock(&b, r.eng.cfg.Evidence.CredibilityBedrock)
	return userMessage(b.String())
}

func (r *run) caseFileContext(feedback string) []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.analysisBlock(&b)
	r.hypothesesBlock(&b)
	r.analysesBlock(&b)
	r.synthesisBlock(&b)
	r.adjudicationsBlock(&b)
	r.evidenceBlock(&b, 0)
	if feedback != "" {
		fmt.Fprintf(&b, "Previous coverage feedback: %s\n", feedback)
	}
	return userMessage(b.String())
}

func (r *run) coverageContext() []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.caseFileBlock(&b)
	r.hypothesesBlock(&b)
	if points := r.state.Disagreements(); len(points) > 0 {
		b.WriteString("Disagreement points the case file must cover:\n")
		for _, p := range points {
			fmt.Fprintf(&b, "- %s\n", p.Topic)
		}
	}
	if ids := r.registry.SortedIDs(); len(ids) > 0 {
		fmt.Fprintf(&b, "Registry fact ids: %s\n", strings.Join(ids, ", "))
	}
	return userMessage(b.String())
}

func (r *run) arbitrationContext(metrics verdict.Metrics) []worker.Message {
	var b strings.Builder
	r.questionLine(&b)
	r.caseFileBlock(&b)
	r.adjudicationsBlock(&b)
	r.evidenceBlock(&b, 0)
	fmt.Fprintf(&b, "Robustness: %.3f (%s); confidence ceiling %.0f%%.\n",
		metrics.Score, metrics.Interpretation, metrics.ConfidenceCeiling)
	writeList(&b, "Caps applied", metrics.CapsApplied)
	writeList(&b, "Degradations", metrics.Degradations)
	return userMessage(b.String())
}

func (r *run) analysisBlock(b *strings.Builder) {
	payload := r.state.Analysis()
	if len(payload) == 0 {
		return
	}
	if v := schema.Str(payload, "restated_question"); v != "" {
		fmt.Fprintf(b, "Restated question: %s\n", v)
	}
	writeList(b, "Key claims", schema.Strings(payload, "key_claims"))
	writeList(b, "Ambiguities", schema.Strings(payload, "ambiguities"))
	writeList(b, "Domains", schema.Strings(payload, "domains"))
	fmt.Fprintf(b, "Complexity score: %.1f\n", r.state.Complexity())
}

func (r *run) hypothesesBlock(b *strings.Builder) {
	hypotheses := r.state.Hypotheses()
	if len(hypotheses) == 0 {
		return
	}
	b.WriteString("Null hypotheses under consideration:\n")
	for _, h := range hypotheses {
		fmt.Fprintf(b, "- %s [%s]: %s (falsification test: %s)\n", h.ID, h.Status, h.Statement, h.FalsificationTest)
	}
}

func (r *run) analysesBlock(b *strings.Builder) {
	analyses := r.state.Analyses()
	if len(analyses) == 0 {
		return
	}
	b.WriteString("Panel record:\n")
	for _, a := range analyses {
		fmt.Fprintf(b, "Persona %s (confidence %.2f): %s\n", a.PersonaID, a.Confidence, a.Position)
		for _, arg := range a.KeyArguments {
			fmt.Fprintf(b, "  - %s\n", arg)
		}
		if len(a.CitedFactIDs) > 0 {
			fmt.Fprintf(b, "  cites: %s\n", strings.Join(a.CitedFactIDs, ", "))
		}
		if a.Degraded {
			b.WriteString("  (degraded output)\n")
		}
	}
}

func (r *run) synthesisBlock(b *strings.Builder) {
	synthesis, critique := r.state.Synthesis()
	if v := schema.Str(synthesis, "convergent_summary"); v != "" {
		fmt.Fprintf(b, "Convergent synthesis: %s\n", v)
	}
	writeList(b, "Agreements", schema.Strings(synthesis, "agreements"))
	writeList(b, "Transcendent insights", schema.Strings(synthesis, "transcendent_insights"))
	if v := schema.Str(critique, "critique_summary"); v != "" {
		fmt.Fprintf(b, "Adversarial critique: %s\n", v)
	}
	writeList(b, "Strongest objections", schema.Strings(critique, "strongest_objections"))
}

func (r *run) adjudicationsBlock(b *strings.Builder) {
	adjudications := r.state.Adjudications()
	if len(adjudications) == 0 {
		return
	}
	b.WriteString("Adjudications:\n")
	for _, adj := range adjudications {
		fmt.Fprintf(b, "- %s: %s", adj.HypothesisID, adj.Ruling)
		if adj.Reasoning != "" {
			fmt.Fprintf(b, " (%s)", adj.Reasoning)
		}
		if len(adj.CitedFactIDs) > 0 {
			fmt.Fprintf(b, " cites %s", strings.Join(adj.CitedFactIDs, ", "))
		}
		b.WriteByte('\n')
	}
}

func (r *run) caseFileBlock(b *strings.Builder) {
	payload := r.state.CaseFile()
	if len(payload) == 0 {
		return
	}
	sections := []struct{ label, key string }{
		{"Question and stakes", "question_and_stakes"},
		{"Evidence inventory", "evidence_inventory"},
		{"Argument map", "argument_map"},
		{"Unresolved tensions", "unresolved_tensions"},
	}
	b.WriteString("Case file:\n")
	for _, s := range sections {
		if v := schema.Str(payload, s.key); v != "" {
			fmt.Fprintf(b, "%s: %s\n", s.label, v)
		}
	}
	if rep := schema.Object(payload, "compression_report"); rep != nil {
		orig, _ := schema.Num(rep, "original_fact_count")
		kept, _ := schema.Num(rep, "retained_fact_count")
		fmt.Fprintf(b, "Compression report: %.0f of %.0f facts retained\n", kept, orig)
	}
}

// evidenceBlock renders the ledger, preferring facts at or above min
// credibility and falling back to the full ledger when none qualify.
func (r *run) evidenceBlock(b *strings.Builder, min float64) {
	facts := r.registry.HighCredibility(min)
	if len(facts) == 0 {
		facts = r.registry.Facts()
	}
	if len(facts) == 0 {
		b.WriteString("Registered evidence: none.\n")
		return
	}
	b.WriteString("Registered evidence:\n")
	for _, f := range facts {
		fmt.Fprintf(b, "- %s [%.2f %s] %s", f.ID, f.Credibility, f.SourceType, f.Statement)
		if f.Source != "" {
			fmt.Fprintf(b, " (source: %s)", f.Source)
		}
		b.WriteByte('\n')
	}
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// Payload parsers. Every parser tolerates a nil or degraded payload and
// returns what it could read.

func parseHypotheses(payload map[string]any) []Hypothesis {
	records := schema.Records(payload, "hypotheses")
	out := make([]Hypothesis, 0, len(records))
	for _, rec := range records {
		statement := strings.TrimSpace(schema.Str(rec, "statement"))
		if statement == "" {
			continue
		}
		out = append(out, Hypothesis{
			ID:                strings.TrimSpace(schema.Str(rec, "id")),
			Statement:         statement,
			FalsificationTest: schema.Str(rec, "falsification_test"),
			Status:            HypothesisUntested,
		})
	}
	return out
}

func parsePersonas(payload map[string]any) []worker.Persona {
	records := schema.Records(payload, "personas")
	out := make([]worker.Persona, 0, len(records))
	for i, rec := range records {
		id := strings.TrimSpace(schema.Str(rec, "persona_id"))
		if id == "" {
			id = fmt.Sprintf("persona-%d", i+1)
		}
		out = append(out, worker.Persona{
			ID:             id,
			Framework:      schema.Str(rec, "framework"),
			DivergenceAxes: schema.Strings(rec, "divergence_axes"),
			Rationale:      schema.Str(rec, "rationale"),
		})
	}
	return out
}

func parsePoints(payload map[string]any) []DisagreementPoint {
	records := schema.Records(payload, "disagreement_points")
	out := make([]DisagreementPoint, 0, len(records))
	for _, rec := range records {
		point := DisagreementPoint{
			Topic:                strings.TrimSpace(schema.Str(rec, "topic")),
			ResearchObjective:    strings.TrimSpace(schema.Str(rec, "research_objective")),
			ConfirmatoryQuery:    strings.TrimSpace(schema.Str(rec, "confirmatory_query")),
			DisconfirmatoryQuery: strings.TrimSpace(schema.Str(rec, "disconfirmatory_query")),
		}
		if point.Topic == "" && point.ResearchObjective == "" {
			continue
		}
		out = append(out, point)
	}
	return out
}

func maxSimilarity(payload map[string]any) float64 {
	var max float64
	for _, rec := range schema.Records(payload, "pairwise_similarity") {
		if v, ok := schema.Num(rec, "similarity"); ok && v > max {
			max = v
		}
	}
	return max
}

func allocationFeedback(payload map[string]any, maxSim, limit float64) string {
	parts := make([]string, 0, 3)
	if maxSim > limit {
		parts = append(parts, fmt.Sprintf("max pairwise similarity %.2f exceeds the %.2f limit", maxSim, limit))
	}
	if flags := schema.Strings(payload, "redundancy_flags"); len(flags) > 0 {
		parts = append(parts, "redundant seats: "+strings.Join(flags, ", "))
	}
	if notes := strings.TrimSpace(schema.Str(payload, "notes")); notes != "" {
		parts = append(parts, notes)
	}
	if len(parts) == 0 {
		parts = append(parts, "panel was not approved")
	}
	return "previous panel rejected: " + strings.Join(parts, "; ") +
		". Allocate replacement personas with more divergent frameworks."
}

func coverageFeedback(coverage CoverageOutcome) string {
	feedback := fmt.Sprintf("coverage check failed: fact preservation %.2f, divergence coverage %.2f, null coverage %.2f",
		coverage.FactPreservation, coverage.DivergenceCoverage, coverage.NullCoverage)
	if len(coverage.Gaps) > 0 {
		feedback += "; gaps: " + strings.Join(coverage.Gaps, "; ")
	}
	return feedback + ". Recompile the case file addressing every gap."
}
