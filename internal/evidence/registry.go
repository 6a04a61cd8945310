package evidence

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	SourceTypePrimary   = "primary"
	SourceTypeSecondary = "secondary"
	SourceTypeTertiary  = "tertiary"

	StatusRegistered = "registered"
	StatusFailed     = "failed"

	maxStatementChars = 10000
	maxSourceChars    = 2000
)

// defaultCredibility maps a normalized source type to its base score.
// Unknown types fall back to tertiary.
var defaultCredibility = map[string]float64{
	SourceTypePrimary:   0.95,
	SourceTypeSecondary: 0.75,
	SourceTypeTertiary:  0.55,
}

// Fact is one immutable entry in the run's evidence ledger.
type Fact struct {
	ID          string    `json:"fact_id"`
	Statement   string    `json:"statement"`
	Source      string    `json:"source"`
	SourceType  string    `json:"source_type"`
	Credibility float64   `json:"credibility"`
	Track       string    `json:"research_track,omitempty"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
	Truncated   bool      `json:"truncated,omitempty"`
}

// Claim is the raw input to Record before sanitation.
type Claim struct {
	Statement  string
	Source     string
	SourceType string
	// Override replaces the table credibility when non-nil. Clamped to [0,1];
	// non-finite values fail the claim.
	Override   *float64
	Track      string
	RecordedBy string
}

// Receipt reports the outcome of one Record call. Record never returns an
// error: failures are carried here so a recording phase cannot abort the run.
type Receipt struct {
	FactID      string  `json:"fact_id"`
	Status      string  `json:"status"`
	Credibility float64 `json:"credibility,omitempty"`
	Truncated   bool    `json:"truncated,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func (r Receipt) Failed() bool { return r.Status != StatusRegistered }

// RegistryError marks malformed evidence input. It never escapes Record;
// callers see it only as Receipt.Error text.
type RegistryError struct {
	Field  string
	Reason string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("evidence %s: %s", e.Field, e.Reason)
}

// Registry is the append-only evidence ledger for a single run. Ids are
// CER-<YYYYMMDD>-<seq> with the sequence restarting at 1 per day. The
// sequence increment and the append happen inside one critical section, so
// concurrent Record calls can never mint duplicate or out-of-order ids.
type Registry struct {
	mu       sync.Mutex
	facts    []Fact
	byID     map[string]int
	daySeq   map[string]int
	now      func() time.Time
	failures int

	credibility  map[string]float64
	statementMax int
	sourceMax    int
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   map[string]int{},
		daySeq: map[string]int{},
		now:    func() time.Time { return time.Now().UTC() },
		credibility: map[string]float64{
			SourceTypePrimary:   defaultCredibility[SourceTypePrimary],
			SourceTypeSecondary: defaultCredibility[SourceTypeSecondary],
			SourceTypeTertiary:  defaultCredibility[SourceTypeTertiary],
		},
		statementMax: maxStatementChars,
		sourceMax:    maxSourceChars,
	}
}

// WithClock replaces the registry clock; tests pin the day token with it.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// WithCredibility replaces the source-type credibility table. Values are
// clamped to [0,1]; non-positive values keep the defaults.
func (r *Registry) WithCredibility(primary, secondary, tertiary float64) *Registry {
	if primary > 0 {
		r.credibility[SourceTypePrimary] = clamp01(primary)
	}
	if secondary > 0 {
		r.credibility[SourceTypeSecondary] = clamp01(secondary)
	}
	if tertiary > 0 {
		r.credibility[SourceTypeTertiary] = clamp01(tertiary)
	}
	return r
}

// WithLimits replaces the truncation limits. Non-positive values keep the
// defaults.
func (r *Registry) WithLimits(statementMax, sourceMax int) *Registry {
	if statementMax > 0 {
		r.statementMax = statementMax
	}
	if sourceMax > 0 {
		r.sourceMax = sourceMax
	}
	return r
}

// Record sanitizes the claim, assigns the next id and appends the fact.
// Overlong statements and sources are truncated, never rejected. Any failure
// is converted into a failed Receipt; nothing propagates past this boundary.
func (r *Registry) Record(claim Claim) Receipt {
	fact, err := r.sanitize(claim)
	if err != nil {
		r.mu.Lock()
		r.failures++
		n := r.failures
		r.mu.Unlock()
		return Receipt{
			FactID: fmt.Sprintf("ERR-%03d", n),
			Status: StatusFailed,
			Error:  err.Error(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	day := fact.RecordedAt.Format("20060102")
	r.daySeq[day]++
	fact.ID = fmt.Sprintf("CER-%s-%03d", day, r.daySeq[day])
	r.byID[fact.ID] = len(r.facts)
	r.facts = append(r.facts, fact)
	return Receipt{
		FactID:      fact.ID,
		Status:      StatusRegistered,
		Credibility: fact.Credibility,
		Truncated:   fact.Truncated,
	}
}

func (r *Registry) sanitize(claim Claim) (Fact, error) {
	statement := strings.TrimSpace(claim.Statement)
	if statement == "" {
		return Fact{}, &RegistryError{Field: "statement", Reason: "must not be empty"}
	}
	source := strings.TrimSpace(claim.Source)
	truncated := false
	if len(statement) > r.statementMax {
		statement = statement[:r.statementMax]
		truncated = true
	}
	if len(source) > r.sourceMax {
		source = source[:r.sourceMax]
		truncated = true
	}

	sourceType := strings.ToLower(strings.TrimSpace(claim.SourceType))
	credibility, ok := r.credibility[sourceType]
	if !ok {
		sourceType = SourceTypeTertiary
		credibility = r.credibility[SourceTypeTertiary]
	}
	if claim.Override != nil {
		v := *claim.Override
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Fact{}, &RegistryError{Field: "credibility_override", Reason: "must be a finite number"}
		}
		credibility = clamp01(v)
	}

	return Fact{
		Statement:   statement,
		Source:      source,
		SourceType:  sourceType,
		Credibility: round4(credibility),
		Track:       strings.TrimSpace(claim.Track),
		RecordedBy:  strings.TrimSpace(claim.RecordedBy),
		RecordedAt:  r.now().UTC().Truncate(time.Second),
		Truncated:   truncated,
	}, nil
}

// Facts returns the ledger in insertion order. The slice is a copy; the
// ledger itself is never handed out.
func (r *Registry) Facts() []Fact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Fact, len(r.facts))
	copy(out, r.facts)
	return out
}

// HighCredibility returns facts at or above min, insertion order preserved.
func (r *Registry) HighCredibility(min float64) []Fact {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Fact
	for _, fact := range r.facts {
		if fact.Credibility >= min {
			out = append(out, fact)
		}
	}
	return out
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) Get(id string) (Fact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return Fact{}, false
	}
	return r.facts[idx], true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.facts)
}

// Stats summarizes the ledger for robustness scoring and the run report.
type Stats struct {
	Count           int            `json:"count"`
	FailedRecords   int            `json:"failed_records"`
	MeanCredibility float64        `json:"mean_credibility"`
	BySourceType    map[string]int `json:"by_source_type"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{
		Count:         len(r.facts),
		FailedRecords: r.failures,
		BySourceType:  map[string]int{},
	}
	if len(r.facts) == 0 {
		return stats
	}
	var sum float64
	for _, fact := range r.facts {
		sum += fact.Credibility
		stats.BySourceType[fact.SourceType]++
	}
	stats.MeanCredibility = round4(sum / float64(len(r.facts)))
	return stats
}

// SortedIDs returns all ids in lexicographic order, which for a single day
// matches insertion order.
func (r *Registry) SortedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.facts))
	for _, fact := range r.facts {
		ids = append(ids, fact.ID)
	}
	sort.Strings(ids)
	return ids
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
