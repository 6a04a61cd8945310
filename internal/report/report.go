// Package report writes the artifacts a finished run leaves behind: the
// exported run state and the decision brief, a markdown document with a YAML
// front matter block so downstream tooling can read the verdict without
// parsing prose.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veliant/tribunal/internal/engine"
	"github.com/veliant/tribunal/internal/evidence"
	"github.com/veliant/tribunal/internal/verdict"
)

// WriteAll exports a finished run under paths: state.json atomically, then
// the decision brief. The trace is not written here; it streams through the
// engine's sink while the run is live.
func WriteAll(paths RunPaths, result *engine.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	if err := WriteJSONAtomic(paths.State, result.State); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	brief, err := DecisionMarkdown(result)
	if err != nil {
		return err
	}
	if err := ValidateBrief(result.Decision.Outcome, brief); err != nil {
		return err
	}
	if err := os.WriteFile(paths.Decision, []byte(brief), 0o644); err != nil {
		return fmt.Errorf("write decision brief: %w", err)
	}
	return nil
}

// WriteJSONAtomic writes v as indented JSON via a temp file and rename, so a
// crash mid-write never leaves a torn artifact behind.
func WriteJSONAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

type frontMatter struct {
	RunID          string    `yaml:"run_id"`
	Question       string    `yaml:"question"`
	Outcome        string    `yaml:"outcome"`
	Verdict        string    `yaml:"verdict,omitempty"`
	Confidence     float64   `yaml:"confidence_percentage"`
	Robustness     float64   `yaml:"robustness_score"`
	Interpretation string    `yaml:"robustness_interpretation"`
	GeneratedAt    time.Time `yaml:"generated_at"`
}

// DecisionMarkdown renders the decision brief for a finished run. The body
// depends on the outcome: a completed run carries the full verdict with its
// evidence and robustness accounting, while blocked and clarification
// outcomes explain the gate's reasoning and stop there.
func DecisionMarkdown(result *engine.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result is nil")
	}
	d := result.Decision
	meta, err := yaml.Marshal(frontMatter{
		RunID:          d.RunID,
		Question:       d.Question,
		Outcome:        d.Outcome,
		Verdict:        d.Verdict,
		Confidence:     d.Confidence,
		Robustness:     d.Robustness.Score,
		Interpretation: d.Robustness.Interpretation,
		GeneratedAt:    d.GeneratedAt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# Tribunal Decision %s\n\n", d.RunID)
	fmt.Fprintf(&b, "**Question.** %s\n\n", d.Question)

	switch d.Outcome {
	case verdict.OutcomeBlocked:
		b.WriteString("## Gate Decision\n\n")
		fmt.Fprintf(&b, "The audit gate blocked this question before analysis: %s\n\n", d.BlockReason)
	case verdict.OutcomeAwaitingClarification:
		b.WriteString("## Clarification Needed\n\n")
		fmt.Fprintf(&b, "%s\n\n", d.ClarificationPrompt)
	default:
		writeVerdictSections(&b, d, result.State)
	}

	writeRunRecord(&b, result)
	return b.String(), nil
}

func writeVerdictSections(b *strings.Builder, d verdict.Decision, state engine.Snapshot) {
	fmt.Fprintf(b, "**Verdict.** %s\n\n", d.Verdict)
	fmt.Fprintf(b, "**Confidence.** %.1f%% (claimed %.1f%%, ceiling %.0f%%)\n\n",
		d.Confidence, d.ClaimedConfidence, d.Robustness.ConfidenceCeiling)

	b.WriteString("## Justification\n\n")
	if len(d.JustificationTrace) == 0 {
		b.WriteString("No justification trace was produced.\n")
	}
	for i, step := range d.JustificationTrace {
		fmt.Fprintf(b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\n")

	b.WriteString("## Evidence Cited\n\n")
	cited := citedFacts(d.CitedFactIDs, state.Evidence)
	if len(cited) == 0 {
		b.WriteString("No registered facts were cited.\n")
	}
	for _, f := range cited {
		fmt.Fprintf(b, "- %s [%.2f %s] %s\n", f.ID, f.Credibility, f.SourceType, f.Statement)
	}
	b.WriteString("\n")

	b.WriteString("## Null Hypotheses\n\n")
	if len(state.Hypotheses) == 0 {
		b.WriteString("No null hypotheses were recorded.\n")
	}
	for _, h := range state.Hypotheses {
		fmt.Fprintf(b, "- %s [%s] %s\n", h.ID, h.Status, h.Statement)
	}
	if d.NullAcknowledgment != "" {
		fmt.Fprintf(b, "\n%s\n", d.NullAcknowledgment)
	}
	b.WriteString("\n")

	b.WriteString("## Robustness\n\n")
	m := d.Robustness
	fmt.Fprintf(b, "Score %.3f (%s), confidence ceiling %.0f%%.\n\n", m.Score, m.Interpretation, m.ConfidenceCeiling)
	fmt.Fprintf(b, "- evidence strength: %.3f\n", m.Components.EvidenceStrength)
	fmt.Fprintf(b, "- persona divergence: %.3f\n", m.Components.PersonaDivergence)
	fmt.Fprintf(b, "- adjudication decisiveness: %.3f\n", m.Components.AdjudicationDecisiveness)
	fmt.Fprintf(b, "- coverage: %.3f\n", m.Components.Coverage)
	for _, c := range m.CapsApplied {
		fmt.Fprintf(b, "- cap: %s\n", c)
	}
	for _, deg := range m.Degradations {
		fmt.Fprintf(b, "- degradation: %s\n", deg)
	}
	b.WriteString("\n")

	if d.Sensitivity != "" {
		b.WriteString("## Sensitivity\n\n")
		fmt.Fprintf(b, "%s\n\n", d.Sensitivity)
	}
}

func writeRunRecord(b *strings.Builder, result *engine.Result) {
	state := result.State
	b.WriteString("## Run Record\n\n")
	fmt.Fprintf(b, "- final phase: %s\n", state.Phase)
	fmt.Fprintf(b, "- persona allocation attempts: %d\n", state.PersonaAttempts)
	fmt.Fprintf(b, "- case file attempts: %d\n", state.CaseFileAttempts)
	fmt.Fprintf(b, "- panel seats: %d\n", len(state.Personas))
	fmt.Fprintf(b, "- trace events: %d\n", len(result.Trace))
	fmt.Fprintf(b, "- facts registered: %d (mean credibility %.2f, %d failed records)\n",
		state.EvidenceStats.Count, state.EvidenceStats.MeanCredibility, state.EvidenceStats.FailedRecords)

	if len(state.Evidence) == 0 {
		return
	}
	b.WriteString("\n## Evidence Ledger\n\n")
	for _, f := range state.Evidence {
		fmt.Fprintf(b, "- %s [%.2f %s] %s", f.ID, f.Credibility, f.SourceType, f.Statement)
		if f.Source != "" {
			fmt.Fprintf(b, " (source: %s)", f.Source)
		}
		if f.Track != "" {
			fmt.Fprintf(b, " via %s track", f.Track)
		}
		b.WriteString("\n")
	}
}

func citedFacts(ids []string, ledger []evidence.Fact) []evidence.Fact {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]evidence.Fact, 0, len(ids))
	for _, f := range ledger {
		if _, ok := want[f.ID]; ok {
			out = append(out, f)
		}
	}
	return out
}
