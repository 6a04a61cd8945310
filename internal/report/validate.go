package report

import (
	"fmt"
	"strings"

	"github.com/veliant/tribunal/internal/verdict"
)

var requiredSectionsByOutcome = map[string][]string{
	verdict.OutcomeCompleted:             {"Justification", "Evidence Cited", "Null Hypotheses", "Robustness", "Run Record"},
	verdict.OutcomeBlocked:               {"Gate Decision", "Run Record"},
	verdict.OutcomeAwaitingClarification: {"Clarification Needed", "Run Record"},
}

// ValidateBrief checks that a rendered decision brief carries every section
// its outcome requires. A brief that fails here is a rendering bug, not a
// deliberation failure.
func ValidateBrief(outcome, content string) error {
	required, ok := requiredSectionsByOutcome[outcome]
	if !ok {
		return fmt.Errorf("unknown decision outcome %q", outcome)
	}
	if !strings.HasPrefix(content, "---\n") {
		return fmt.Errorf("decision brief missing front matter")
	}
	missing := make([]string, 0, len(required))
	for _, section := range required {
		header := "## " + section
		if !strings.Contains(content, header) {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("decision brief missing required sections for outcome %s: %s", outcome, strings.Join(missing, ", "))
	}
	return nil
}
