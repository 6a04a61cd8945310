package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/veliant/tribunal/internal/engine"
	"github.com/veliant/tribunal/internal/report"
	"github.com/veliant/tribunal/internal/verdict"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

	robustStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ECC71"))
	moderateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F1C40F"))
	fragileStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E74C3C"))
)

func interpretationStyle(interpretation string) lipgloss.Style {
	switch interpretation {
	case verdict.Robust:
		return robustStyle
	case verdict.Moderate:
		return moderateStyle
	default:
		return fragileStyle
	}
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case verdict.OutcomeCompleted:
		return robustStyle
	case verdict.OutcomeAwaitingClarification:
		return moderateStyle
	default:
		return fragileStyle
	}
}

func renderRunHeader(runID, question, root string) string {
	lines := []string{
		titleStyle.Render("TRIBUNAL · " + runID),
		question,
		labelStyle.Render("artifacts: ") + root,
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderDecision builds the styled terminal brief for a finished run. The
// durable record is decision.md; this is the at-a-glance version.
func renderDecision(result *engine.Result, paths report.RunPaths) string {
	d := result.Decision
	var lines []string

	switch d.Outcome {
	case verdict.OutcomeBlocked:
		lines = append(lines,
			fragileStyle.Render("BLOCKED")+titleStyle.Render(" · "+d.RunID),
			"",
			"The audit gate refused this question before any analysis was spent:",
			"  "+d.BlockReason,
		)
	case verdict.OutcomeAwaitingClarification:
		lines = append(lines,
			moderateStyle.Render("CLARIFICATION NEEDED")+titleStyle.Render(" · "+d.RunID),
			"",
			"Restate the question and run again:",
			"  "+d.ClarificationPrompt,
		)
	default:
		m := d.Robustness
		lines = append(lines,
			titleStyle.Render("VERDICT · "+d.RunID),
			"",
			d.Verdict,
			"",
			fmt.Sprintf("%s %.1f%% (claimed %.1f%%, ceiling %.0f%%)",
				labelStyle.Render("confidence"), d.Confidence, d.ClaimedConfidence, m.ConfidenceCeiling),
			fmt.Sprintf("%s %.4f · %s",
				labelStyle.Render("robustness"), m.Score, interpretationStyle(m.Interpretation).Render(m.Interpretation)),
		)
		if len(m.CapsApplied) > 0 {
			lines = append(lines, labelStyle.Render("caps       ")+strings.Join(m.CapsApplied, "; "))
		}
		if n := len(result.State.Degradations); n > 0 {
			lines = append(lines, labelStyle.Render("degraded   ")+fmt.Sprintf("%d flag(s) raised during the run", n))
		}
		if stats := result.State.EvidenceStats; stats.Count > 0 {
			lines = append(lines, labelStyle.Render("evidence   ")+fmt.Sprintf("%d fact(s), mean credibility %.2f", stats.Count, stats.MeanCredibility))
		}
	}

	lines = append(lines,
		"",
		dimStyle.Render("decision  "+paths.Decision),
		dimStyle.Render("state     "+paths.State),
		dimStyle.Render("trace     "+paths.Trace),
	)
	return boxStyle.Render(strings.Join(lines, "\n"))
}
