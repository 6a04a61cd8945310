package schema

// Output keys, one per pipeline worker role.
const (
	KeyAuditResult          = "audit_result"
	KeyQuestionAnalysis     = "question_analysis"
	KeyNullHypotheses       = "null_hypotheses"
	KeyPersonaAllocation    = "persona_allocation"
	KeyPersonaValidation    = "persona_validation"
	KeyPersonaAnalysis      = "persona_analysis"
	KeySynthesis            = "synthesis"
	KeyAdversarialCritique  = "adversarial_critique"
	KeyDisagreementAnalysis = "disagreement_analysis"
	KeyResearchReport       = "research_report"
	KeyAdjudication         = "adjudication"
	KeyCaseFile             = "case_file"
	KeyCoverageResult       = "coverage_result"
	KeyFinalVerdict         = "final_verdict"
)

// Adjudication rulings. Capitalized on the wire.
const (
	RulingReject       = "Reject"
	RulingAccept       = "Accept"
	RulingUndetermined = "Undetermined"
)

// Persona validation statuses.
const (
	StatusApproved             = "approved"
	StatusRequiresRegeneration = "requires_regeneration"
)

func bound(v float64) *float64 { return &v }

// Catalog maps each output key to its contract. Keys absent here validate as
// a pass; the pipeline only ever emits the keys below.
var Catalog = map[string]Spec{
	KeyAuditResult: {
		OutputKey: KeyAuditResult,
		Fields: []FieldSpec{
			{Name: "audit_status", Kind: KindString, Required: true},
			{Name: "reasoning", Kind: KindString},
			{Name: "clarification_prompt", Kind: KindString},
		},
	},
	KeyQuestionAnalysis: {
		OutputKey: KeyQuestionAnalysis,
		Fields: []FieldSpec{
			{Name: "restated_question", Kind: KindString, Required: true},
			{Name: "key_claims", Kind: KindList, Required: true, StringItems: true},
			{Name: "ambiguities", Kind: KindList, StringItems: true},
			{Name: "complexity_score", Kind: KindNumber, Required: true, Min: bound(1), Max: bound(5)},
			{Name: "domains", Kind: KindList, StringItems: true},
		},
	},
	KeyNullHypotheses: {
		OutputKey: KeyNullHypotheses,
		Fields: []FieldSpec{
			{Name: "hypotheses", Kind: KindList, Required: true, MinItems: 1, ItemFields: []FieldSpec{
				{Name: "statement", Kind: KindString, Required: true},
				{Name: "falsification_test", Kind: KindString, Required: true},
				{Name: "id", Kind: KindString},
			}},
			{Name: "rationale", Kind: KindString},
		},
	},
	KeyPersonaAllocation: {
		OutputKey: KeyPersonaAllocation,
		Fields: []FieldSpec{
			{Name: "personas", Kind: KindList, Required: true, MinItems: 1, ItemFields: []FieldSpec{
				{Name: "persona_id", Kind: KindString, Required: true},
				{Name: "framework", Kind: KindString, Required: true},
				{Name: "divergence_axes", Kind: KindList, StringItems: true},
				{Name: "rationale", Kind: KindString},
			}},
		},
	},
	KeyPersonaValidation: {
		OutputKey: KeyPersonaValidation,
		Fields: []FieldSpec{
			{Name: "validation_status", Kind: KindString, Required: true, Enum: []string{StatusApproved, StatusRequiresRegeneration}},
			{Name: "pairwise_similarity", Kind: KindList, ItemFields: []FieldSpec{
				{Name: "persona_a", Kind: KindString, Required: true},
				{Name: "persona_b", Kind: KindString, Required: true},
				{Name: "similarity", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(1)},
			}},
			{Name: "redundancy_flags", Kind: KindList, StringItems: true},
			{Name: "notes", Kind: KindString},
		},
	},
	KeyPersonaAnalysis: {
		OutputKey: KeyPersonaAnalysis,
		Fields: []FieldSpec{
			{Name: "persona_id", Kind: KindString, Required: true},
			{Name: "position", Kind: KindString, Required: true},
			{Name: "key_arguments", Kind: KindList, StringItems: true},
			{Name: "confidence", Kind: KindNumber, Min: bound(0), Max: bound(1)},
			{Name: "cited_fact_ids", Kind: KindList, StringItems: true},
		},
	},
	KeySynthesis: {
		OutputKey: KeySynthesis,
		Fields: []FieldSpec{
			{Name: "convergent_summary", Kind: KindString, Required: true},
			{Name: "agreements", Kind: KindList, StringItems: true},
			{Name: "transcendent_insights", Kind: KindList, StringItems: true},
		},
	},
	KeyAdversarialCritique: {
		OutputKey: KeyAdversarialCritique,
		Fields: []FieldSpec{
			{Name: "critique_summary", Kind: KindString, Required: true},
			{Name: "strongest_objections", Kind: KindList, Required: true, MinItems: 1, StringItems: true},
		},
	},
	KeyDisagreementAnalysis: {
		OutputKey: KeyDisagreementAnalysis,
		Fields: []FieldSpec{
			{Name: "disagreement_points", Kind: KindList, Required: true, ItemFields: []FieldSpec{
				{Name: "topic", Kind: KindString, Required: true},
				{Name: "research_objective", Kind: KindString, Required: true},
				{Name: "confirmatory_query", Kind: KindString},
				{Name: "disconfirmatory_query", Kind: KindString},
			}},
			{Name: "divergence_score", Kind: KindNumber, Min: bound(0), Max: bound(1)},
		},
	},
	KeyResearchReport: {
		OutputKey: KeyResearchReport,
		Fields: []FieldSpec{
			{Name: "facts", Kind: KindList, Required: true, ItemFields: []FieldSpec{
				{Name: "statement", Kind: KindString, Required: true},
				{Name: "source", Kind: KindString},
				{Name: "source_type", Kind: KindString},
				{Name: "credibility_override", Kind: KindNumber, Min: bound(0), Max: bound(1)},
			}},
			{Name: "summary", Kind: KindString},
			{Name: "disconfirmatory_ratio", Kind: KindNumber, Min: bound(0), Max: bound(1)},
		},
	},
	KeyAdjudication: {
		OutputKey: KeyAdjudication,
		Fields: []FieldSpec{
			{Name: "hypothesis_id", Kind: KindString, Required: true},
			{Name: "ruling", Kind: KindString, Required: true, Enum: []string{RulingReject, RulingAccept, RulingUndetermined}},
			{Name: "reasoning", Kind: KindString},
			{Name: "cited_fact_ids", Kind: KindList, StringItems: true},
		},
	},
	KeyCaseFile: {
		OutputKey: KeyCaseFile,
		Fields: []FieldSpec{
			{Name: "question_and_stakes", Kind: KindString, Required: true},
			{Name: "evidence_inventory", Kind: KindString, Required: true},
			{Name: "argument_map", Kind: KindString, Required: true},
			{Name: "unresolved_tensions", Kind: KindString, Required: true},
			{Name: "compression_report", Kind: KindObject, ItemFields: []FieldSpec{
				{Name: "original_fact_count", Kind: KindNumber},
				{Name: "retained_fact_count", Kind: KindNumber},
			}},
		},
	},
	KeyCoverageResult: {
		OutputKey: KeyCoverageResult,
		Fields: []FieldSpec{
			{Name: "fact_preservation_rate", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(1)},
			{Name: "divergence_coverage", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(1)},
			{Name: "null_coverage", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(1)},
			{Name: "passed", Kind: KindBool, Required: true},
			{Name: "gaps", Kind: KindList, StringItems: true},
		},
	},
	KeyFinalVerdict: {
		OutputKey: KeyFinalVerdict,
		Fields: []FieldSpec{
			{Name: "verdict", Kind: KindString, Required: true},
			{Name: "confidence_percentage", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(100)},
			{Name: "justification_trace", Kind: KindList, StringItems: true},
			{Name: "cited_fact_ids", Kind: KindList, StringItems: true},
			{Name: "null_hypothesis_acknowledgment", Kind: KindString},
			{Name: "sensitivity_disclosure", Kind: KindString},
		},
	},
}
