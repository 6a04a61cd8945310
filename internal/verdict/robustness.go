package verdict

import (
	"fmt"
	"math"

	"github.com/veliant/tribunal/internal/schema"
)

// Interpretation bands for the decision robustness score.
const (
	Robust   = "robust"
	Moderate = "moderate"
	Fragile  = "fragile"
)

// Confidence ceilings in percent, keyed by interpretation band.
const (
	ceilingRobust   = 95.0
	ceilingModerate = 80.0
	ceilingFragile  = 60.0
)

// Caps are applied as score = min(score, cap). Detected weaknesses can only
// lower robustness; their absence never raises it.
const (
	capDegraded           = 0.70
	capLowDivergence      = 0.65
	capCoverageExhausted  = 0.60
	degradationMultiplier = 0.90
)

// Component weights. Order: evidence, divergence, decisiveness, coverage.
const (
	weightEvidence     = 0.30
	weightDivergence   = 0.25
	weightDecisiveness = 0.25
	weightCoverage     = 0.20
)

// Inputs is everything the aggregator reads out of a finished deliberation.
type Inputs struct {
	// MeanCitedCredibility is the mean registry credibility of the facts the
	// adjudications actually cited. Zero when nothing was cited.
	MeanCitedCredibility float64

	// MaxPairwiseSimilarity is the highest similarity the persona validator
	// reported for the panel that ran. SimilarityMax is the configured
	// threshold a panel must stay under.
	MaxPairwiseSimilarity float64
	SimilarityMax         float64

	// Rulings holds one adjudication ruling per null hypothesis.
	Rulings []string

	// Coverage rates from the last coverage validation.
	FactPreservation   float64
	DivergenceCoverage float64
	NullCoverage       float64

	// CoverageExhausted is set when the case file loop hit its ceiling
	// without a passing coverage check.
	CoverageExhausted bool

	// Degradations lists every degradation flag raised during the run.
	Degradations []string
}

// Components are the four ingredient scores, each in [0,1].
type Components struct {
	EvidenceStrength         float64 `json:"evidence_strength"`
	PersonaDivergence        float64 `json:"persona_divergence"`
	AdjudicationDecisiveness float64 `json:"adjudication_decisiveness"`
	Coverage                 float64 `json:"coverage"`
}

// Metrics is the computed robustness verdict over a deliberation.
type Metrics struct {
	Score             float64    `json:"decision_robustness_score"`
	Components        Components `json:"components"`
	Interpretation    string     `json:"interpretation"`
	ConfidenceCeiling float64    `json:"confidence_ceiling"`
	CapsApplied       []string   `json:"caps_applied,omitempty"`
	Degradations      []string   `json:"degradations,omitempty"`
}

// Compute derives robustness metrics from a finished deliberation. It is
// deterministic: no worker is consulted.
func Compute(in Inputs) Metrics {
	components := Components{
		EvidenceStrength:         clamp01(in.MeanCitedCredibility),
		PersonaDivergence:        divergenceScore(in.MaxPairwiseSimilarity, in.SimilarityMax),
		AdjudicationDecisiveness: decisiveness(in.Rulings),
		Coverage:                 coverageScore(in),
	}

	score := weightEvidence*components.EvidenceStrength +
		weightDivergence*components.PersonaDivergence +
		weightDecisiveness*components.AdjudicationDecisiveness +
		weightCoverage*components.Coverage

	m := Metrics{
		Components:   components,
		Degradations: append([]string(nil), in.Degradations...),
	}

	if len(in.Degradations) > 0 {
		score = math.Min(score, capDegraded)
		m.CapsApplied = append(m.CapsApplied, fmt.Sprintf("degraded outputs capped score at %.2f", capDegraded))
	}
	if in.SimilarityMax > 0 && in.MaxPairwiseSimilarity > in.SimilarityMax {
		score = math.Min(score, capLowDivergence)
		m.CapsApplied = append(m.CapsApplied, fmt.Sprintf("persona similarity %.2f above maximum %.2f capped score at %.2f",
			in.MaxPairwiseSimilarity, in.SimilarityMax, capLowDivergence))
	}
	if in.CoverageExhausted {
		score = math.Min(score, capCoverageExhausted)
		m.CapsApplied = append(m.CapsApplied, fmt.Sprintf("coverage loop exhausted capped score at %.2f", capCoverageExhausted))
	}
	for i := 1; i < len(in.Degradations); i++ {
		score *= degradationMultiplier
	}

	m.Score = round4(clamp01(score))
	m.Interpretation, m.ConfidenceCeiling = interpret(m.Score)
	return m
}

// ClampConfidence bounds a worker-claimed confidence percentage to the
// robustness ceiling and to [0,100].
func ClampConfidence(claimed float64, m Metrics) float64 {
	if math.IsNaN(claimed) || math.IsInf(claimed, 0) {
		return 0
	}
	bounded := math.Min(claimed, m.ConfidenceCeiling)
	return math.Max(0, math.Min(100, round4(bounded)))
}

func interpret(score float64) (string, float64) {
	switch {
	case score >= 0.75:
		return Robust, ceilingRobust
	case score >= 0.50:
		return Moderate, ceilingModerate
	default:
		return Fragile, ceilingFragile
	}
}

// divergenceScore rewards panels by how far under the similarity ceiling they
// stayed. A panel exactly at the ceiling scores 1; a fully interchangeable
// panel scores 0.
func divergenceScore(maxSimilarity, similarityMax float64) float64 {
	room := 1 - similarityMax
	if room <= 0 {
		return clamp01(1 - maxSimilarity)
	}
	return clamp01((1 - maxSimilarity) / room)
}

func decisiveness(rulings []string) float64 {
	if len(rulings) == 0 {
		return 0
	}
	decisive := 0
	for _, ruling := range rulings {
		if ruling == schema.RulingReject || ruling == schema.RulingAccept {
			decisive++
		}
	}
	return float64(decisive) / float64(len(rulings))
}

func coverageScore(in Inputs) float64 {
	lowest := math.Min(in.FactPreservation, math.Min(in.DivergenceCoverage, in.NullCoverage))
	return clamp01(lowest)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
