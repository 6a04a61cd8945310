package worker

import (
	"fmt"
	"strings"

	"github.com/veliant/tribunal/internal/schema"
)

// Spec binds a pipeline role to its instruction and to the output key whose
// contract governs the reply.
type Spec struct {
	Role        string
	OutputKey   string
	Instruction string
	Temperature float32
}

// Pipeline roles. Personas are built per run, everything else is fixed.
const (
	RoleAuditor             = "auditor"
	RoleQuestionAnalyst     = "question_analyst"
	RoleNullGenerator       = "null_generator"
	RolePersonaAllocator    = "persona_allocator"
	RolePersonaValidator    = "persona_validator"
	RoleSynthesist          = "synthesist"
	RoleAdversary           = "adversary"
	RoleDisagreementAnalyst = "disagreement_analyst"
	RoleConfirmatory        = "confirmatory_researcher"
	RoleDisconfirmatory     = "disconfirmatory_researcher"
	RoleAdjudicator         = "adjudicator"
	RoleCaseCompiler        = "case_compiler"
	RoleCoverageValidator   = "coverage_validator"
	RoleArbiter             = "arbiter"
)

const jsonOnly = "Reply with exactly one JSON object and nothing else."

var roster = map[string]Spec{
	RoleAuditor: {
		Role:        RoleAuditor,
		OutputKey:   schema.KeyAuditResult,
		Temperature: 0.1,
		Instruction: `You screen incoming questions before any analysis is spent on them.
Decide whether the question is answerable as posed: reject requests for harm, pure opinion polls, and questions with no factual content; ask for clarification when the question is ambiguous enough that different readings demand different analyses; otherwise pass it through.
` + jsonOnly + ` Keys: "audit_status" one of "proceed", "block", "request_clarification"; "reasoning" string; "clarification_prompt" string (required only when requesting clarification).`,
	},
	RoleQuestionAnalyst: {
		Role:        RoleQuestionAnalyst,
		OutputKey:   schema.KeyQuestionAnalysis,
		Temperature: 0.2,
		Instruction: `You decompose a question into the claims that must hold for any answer to it.
Restate the question precisely, list the key claims it rests on, flag ambiguities, name the knowledge domains involved, and score complexity from 1 (single settled fact) to 5 (contested multi-domain judgment).
` + jsonOnly + ` Keys: "restated_question" string; "key_claims" list of strings; "ambiguities" list of strings; "complexity_score" number 1-5; "domains" list of strings.`,
	},
	RoleNullGenerator: {
		Role:        RoleNullGenerator,
		OutputKey:   schema.KeyNullHypotheses,
		Temperature: 0.4,
		Instruction: `You construct null hypotheses: the strongest claims under which the expected answer would be wrong, confounded, or meaningless.
For each null state it plainly and give a concrete falsification test that later evidence could run against it. Nulls that cannot be falsified are worthless; do not produce them.
` + jsonOnly + ` Keys: "hypotheses" list of objects each with "id" string, "statement" string, "falsification_test" string; "rationale" string.`,
	},
	RolePersonaAllocator: {
		Role:        RolePersonaAllocator,
		OutputKey:   schema.KeyPersonaAllocation,
		Temperature: 0.6,
		Instruction: `You assemble a panel of analytical personas for a question. Each persona is a distinct reasoning framework, not a personality.
Maximize methodological divergence: different evidence standards, different failure modes, different priors. Name the divergence axes that separate each persona from the rest of the panel.
` + jsonOnly + ` Keys: "personas" list of objects each with "persona_id" string, "framework" string, "divergence_axes" list of strings, "rationale" string.`,
	},
	RolePersonaValidator: {
		Role:        RolePersonaValidator,
		OutputKey:   schema.KeyPersonaValidation,
		Temperature: 0.1,
		Instruction: `You audit a proposed persona panel for redundancy.
Score every pair of personas for methodological similarity from 0 (orthogonal) to 1 (interchangeable). If any pair is too similar to justify separate seats, require regeneration and name the redundant pair; otherwise approve.
` + jsonOnly + ` Keys: "validation_status" one of "approved", "requires_regeneration"; "pairwise_similarity" list of objects each with "persona_a", "persona_b", "similarity" number 0-1; "redundancy_flags" list of strings; "notes" string.`,
	},
	RoleSynthesist: {
		Role:        RoleSynthesist,
		OutputKey:   schema.KeySynthesis,
		Temperature: 0.3,
		Instruction: `You synthesize independent persona analyses into what the panel actually agrees on.
Report only convergence that survives all framings; an agreement reached by two personas and contradicted by a third is not convergent. Note insights no single persona produced alone.
` + jsonOnly + ` Keys: "convergent_summary" string; "agreements" list of strings; "transcendent_insights" list of strings.`,
	},
	RoleAdversary: {
		Role:        RoleAdversary,
		OutputKey:   schema.KeyAdversarialCritique,
		Temperature: 0.8,
		Instruction: `You attack the panel's emerging consensus. Assume it is wrong and find the strongest reasons why.
Target shared blind spots, load-bearing claims with thin evidence, and places where the personas converged by sharing an assumption rather than by independent reasoning.
` + jsonOnly + ` Keys: "critique_summary" string; "strongest_objections" list of strings with at least one entry.`,
	},
	RoleDisagreementAnalyst: {
		Role:        RoleDisagreementAnalyst,
		OutputKey:   schema.KeyDisagreementAnalysis,
		Temperature: 0.2,
		Instruction: `You extract the factual disagreements that remain between the personas, the synthesis, and the adversarial critique.
Keep only disputes that external evidence could settle; discard differences of values or framing. For each, write a confirmatory search query and a disconfirmatory search query.
` + jsonOnly + ` Keys: "disagreement_points" list of objects each with "topic", "research_objective", "confirmatory_query", "disconfirmatory_query" strings; "divergence_score" number 0-1.`,
	},
	RoleConfirmatory: {
		Role:        RoleConfirmatory,
		OutputKey:   schema.KeyResearchReport,
		Temperature: 0.2,
		Instruction: `You distill search results into factual statements supporting the position under investigation.
Each fact must be a single checkable statement tied to its source. Classify each source as primary, secondary, or tertiary; give a credibility_override between 0 and 1 only when the default for that class is clearly wrong.
` + jsonOnly + ` Keys: "facts" list of objects each with "statement" string, "source" string, "source_type" string, optional "credibility_override" number 0-1; "summary" string; "disconfirmatory_ratio" number 0-1.`,
	},
	RoleDisconfirmatory: {
		Role:        RoleDisconfirmatory,
		OutputKey:   schema.KeyResearchReport,
		Temperature: 0.2,
		Instruction: `You distill search results into factual statements that undercut the position under investigation. Your job is to find the disconfirming evidence a motivated advocate would omit.
Each fact must be a single checkable statement tied to its source. Classify each source as primary, secondary, or tertiary; give a credibility_override between 0 and 1 only when the default for that class is clearly wrong.
` + jsonOnly + ` Keys: "facts" list of objects each with "statement" string, "source" string, "source_type" string, optional "credibility_override" number 0-1; "summary" string; "disconfirmatory_ratio" number 0-1.`,
	},
	RoleAdjudicator: {
		Role:        RoleAdjudicator,
		OutputKey:   schema.KeyAdjudication,
		Temperature: 0.1,
		Instruction: `You rule on one null hypothesis against the registered evidence.
Run the hypothesis's falsification test against the facts you are given, citing facts only by their registry id. Rule "Reject" when the evidence defeats the null, "Accept" when it sustains it, "Undetermined" when the evidence cannot settle it. Never cite a fact id that was not provided.
` + jsonOnly + ` Keys: "hypothesis_id" string; "ruling" one of "Reject", "Accept", "Undetermined"; "reasoning" string; "cited_fact_ids" list of strings.`,
	},
	RoleCaseCompiler: {
		Role:        RoleCaseCompiler,
		OutputKey:   schema.KeyCaseFile,
		Temperature: 0.2,
		Instruction: `You compress the full deliberation into a case file for final arbitration.
Preserve every registered fact id that any adjudication relied on, the live disagreements, and the null hypothesis rulings. Compression loses prose, never load-bearing evidence.
` + jsonOnly + ` Keys: "question_and_stakes", "evidence_inventory", "argument_map", "unresolved_tensions" strings; "compression_report" object with "original_fact_count" and "retained_fact_count" numbers.`,
	},
	RoleCoverageValidator: {
		Role:        RoleCoverageValidator,
		OutputKey:   schema.KeyCoverageResult,
		Temperature: 0.1,
		Instruction: `You verify that a case file preserved what the deliberation produced.
Compute the fraction of cited fact ids the case file retains, the fraction of disagreement points it covers, and the fraction of null hypothesis rulings it carries. The check passes only when every rate clears its floor.
` + jsonOnly + ` Keys: "fact_preservation_rate", "divergence_coverage", "null_coverage" numbers 0-1; "passed" boolean; "gaps" list of strings.`,
	},
	RoleArbiter: {
		Role:        RoleArbiter,
		OutputKey:   schema.KeyFinalVerdict,
		Temperature: 0.1,
		Instruction: `You render the final verdict from the case file alone.
State the verdict, trace the justification step by step citing fact ids, acknowledge the strongest surviving null hypothesis, and disclose what would change your verdict. Express confidence as a percentage and never overstate it beyond what the evidence supports.
` + jsonOnly + ` Keys: "verdict" string; "confidence_percentage" number 0-100; "justification_trace" list of strings; "cited_fact_ids" list of strings; "null_hypothesis_acknowledgment" string; "sensitivity_disclosure" string.`,
	},
}

// For returns the fixed spec for a pipeline role.
func For(role string) (Spec, bool) {
	s, ok := roster[role]
	return s, ok
}

// Roles lists every fixed roster role.
func Roles() []string {
	out := make([]string, 0, len(roster))
	for role := range roster {
		out = append(out, role)
	}
	return out
}

// Persona describes one allocated panel seat.
type Persona struct {
	ID             string   `json:"persona_id"`
	Framework      string   `json:"framework"`
	DivergenceAxes []string `json:"divergence_axes,omitempty"`
	Rationale      string   `json:"rationale,omitempty"`
}

// PersonaSpec builds the invocation spec for one allocated persona.
func PersonaSpec(p Persona) Spec {
	axes := "none declared"
	if len(p.DivergenceAxes) > 0 {
		axes = strings.Join(p.DivergenceAxes, "; ")
	}
	instruction := fmt.Sprintf(`You are analytical persona %q. Your framework: %s. Divergence axes you own: %s.
Analyze the question strictly within your framework, even where other framings would be easier. State your position, the arguments that carry it, and your confidence from 0 to 1. Cite registered facts only by their ids.
%s Keys: "persona_id" string (use %q); "position" string; "key_arguments" list of strings; "confidence" number 0-1; "cited_fact_ids" list of strings.`,
		p.ID, p.Framework, axes, jsonOnly, p.ID)
	return Spec{
		Role:        "persona:" + p.ID,
		OutputKey:   schema.KeyPersonaAnalysis,
		Instruction: instruction,
		Temperature: 0.7,
	}
}
