package evidence

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

var cerIDPattern = regexp.MustCompile(`^CER-\d{8}-\d{3}$`)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecordAssignsSequentialDayScopedIDs(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	reg := NewRegistry().WithClock(fixedClock(day))

	var ids []string
	for i := 0; i < 3; i++ {
		receipt := reg.Record(Claim{Statement: fmt.Sprintf("fact %d", i), Source: "test", SourceType: "primary"})
		if receipt.Failed() {
			t.Fatalf("record %d failed: %s", i, receipt.Error)
		}
		if !cerIDPattern.MatchString(receipt.FactID) {
			t.Fatalf("id %q does not match CER pattern", receipt.FactID)
		}
		ids = append(ids, receipt.FactID)
	}
	if ids[0] != "CER-20250314-001" || ids[2] != "CER-20250314-003" {
		t.Fatalf("unexpected id sequence: %v", ids)
	}
	for i := 1; i < len(ids); i++ {
		if !(ids[i] > ids[i-1]) {
			t.Fatalf("ids not lexicographically increasing: %v", ids)
		}
	}
}

func TestRecordSequenceRestartsPerDay(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC)
	reg := NewRegistry().WithClock(func() time.Time { return current })

	first := reg.Record(Claim{Statement: "day one", SourceType: "primary"})
	current = current.Add(2 * time.Minute)
	second := reg.Record(Claim{Statement: "day two", SourceType: "primary"})

	if first.FactID != "CER-20250314-001" {
		t.Fatalf("unexpected first id %q", first.FactID)
	}
	if second.FactID != "CER-20250315-001" {
		t.Fatalf("expected day rollover to restart sequence, got %q", second.FactID)
	}
}

func TestRecordNeverAbortsOnBadInput(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	inf := math.Inf(1)
	cases := []struct {
		name  string
		claim Claim
	}{
		{"empty statement", Claim{Statement: "   ", Source: "x", SourceType: "primary"}},
		{"nan override", Claim{Statement: "ok", Source: "x", SourceType: "primary", Override: &nan}},
		{"inf override", Claim{Statement: "ok", Source: "x", SourceType: "primary", Override: &inf}},
	}
	reg := NewRegistry()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			receipt := reg.Record(tc.claim)
			if !receipt.Failed() {
				t.Fatalf("expected failed receipt, got %+v", receipt)
			}
			if receipt.Error == "" {
				t.Fatalf("failed receipt must carry an error message")
			}
			if !strings.HasPrefix(receipt.FactID, "ERR-") {
				t.Fatalf("failed receipt id should be ERR-prefixed, got %q", receipt.FactID)
			}
		})
	}
	if reg.Len() != 0 {
		t.Fatalf("failed records must not append facts, ledger has %d", reg.Len())
	}
	if reg.Stats().FailedRecords != len(cases) {
		t.Fatalf("expected %d failures counted, got %d", len(cases), reg.Stats().FailedRecords)
	}
}

func TestRecordTruncatesOverlongInput(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	receipt := reg.Record(Claim{
		Statement:  strings.Repeat("s", maxStatementChars+50),
		Source:     strings.Repeat("u", maxSourceChars+50),
		SourceType: "secondary",
	})
	if receipt.Failed() {
		t.Fatalf("overlong input must truncate, not fail: %s", receipt.Error)
	}
	if !receipt.Truncated {
		t.Fatalf("expected truncation flag on receipt")
	}
	fact, ok := reg.Get(receipt.FactID)
	if !ok {
		t.Fatalf("fact %s not found", receipt.FactID)
	}
	if len(fact.Statement) != maxStatementChars {
		t.Fatalf("statement length %d, want %d", len(fact.Statement), maxStatementChars)
	}
	if len(fact.Source) != maxSourceChars {
		t.Fatalf("source length %d, want %d", len(fact.Source), maxSourceChars)
	}
	if !strings.HasPrefix(fact.Statement, "sss") {
		t.Fatalf("truncation must preserve the prefix")
	}
}

func TestCredibilityTableAndOverride(t *testing.T) {
	t.Parallel()

	half := 0.5
	over := 1.7
	under := -0.2
	cases := []struct {
		name       string
		sourceType string
		override   *float64
		want       float64
		wantType   string
	}{
		{"primary", "primary", nil, 0.95, "primary"},
		{"secondary", "secondary", nil, 0.75, "secondary"},
		{"tertiary", "tertiary", nil, 0.55, "tertiary"},
		{"unknown falls back to tertiary", "blog", nil, 0.55, "tertiary"},
		{"case and space normalized", "  Primary ", nil, 0.95, "primary"},
		{"override respected", "primary", &half, 0.5, "primary"},
		{"override clamped high", "tertiary", &over, 1.0, "tertiary"},
		{"override clamped low", "primary", &under, 0.0, "primary"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			receipt := reg.Record(Claim{Statement: "s", Source: "src", SourceType: tc.sourceType, Override: tc.override})
			if receipt.Failed() {
				t.Fatalf("unexpected failure: %s", receipt.Error)
			}
			fact, _ := reg.Get(receipt.FactID)
			if fact.Credibility != tc.want {
				t.Fatalf("credibility %v, want %v", fact.Credibility, tc.want)
			}
			if fact.SourceType != tc.wantType {
				t.Fatalf("source type %q, want %q", fact.SourceType, tc.wantType)
			}
		})
	}
}

func TestConcurrentRecordsProduceDistinctGaplessIDs(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry().WithClock(fixedClock(day))

	const n = 10
	receipts := make([]Receipt, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i] = reg.Record(Claim{Statement: fmt.Sprintf("concurrent %d", i), Source: "t", SourceType: "primary"})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, receipt := range receipts {
		if receipt.Failed() {
			t.Fatalf("concurrent record failed: %s", receipt.Error)
		}
		if seen[receipt.FactID] {
			t.Fatalf("duplicate id %s", receipt.FactID)
		}
		seen[receipt.FactID] = true
	}
	for seq := 1; seq <= n; seq++ {
		id := fmt.Sprintf("CER-20250314-%03d", seq)
		if !seen[id] {
			t.Fatalf("sequence gap: missing %s (got %v)", id, reg.SortedIDs())
		}
	}
}

func TestQueryPreservesInsertionOrderAndFilters(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Record(Claim{Statement: "first", SourceType: "tertiary"})
	reg.Record(Claim{Statement: "second", SourceType: "primary"})
	reg.Record(Claim{Statement: "third", SourceType: "secondary"})

	facts := reg.Facts()
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}
	if facts[0].Statement != "first" || facts[2].Statement != "third" {
		t.Fatalf("insertion order not preserved: %+v", facts)
	}

	high := reg.HighCredibility(0.80)
	if len(high) != 1 || high[0].Statement != "second" {
		t.Fatalf("high credibility filter wrong: %+v", high)
	}

	// Mutating the returned slice must not touch the ledger.
	facts[0].Statement = "mutated"
	if got := reg.Facts()[0].Statement; got != "first" {
		t.Fatalf("ledger mutated through returned slice: %q", got)
	}
}

func TestStatsSummarizesLedger(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Record(Claim{Statement: "a", SourceType: "primary"})
	reg.Record(Claim{Statement: "b", SourceType: "tertiary"})

	stats := reg.Stats()
	if stats.Count != 2 {
		t.Fatalf("count %d, want 2", stats.Count)
	}
	if stats.MeanCredibility != 0.75 {
		t.Fatalf("mean credibility %v, want 0.75", stats.MeanCredibility)
	}
	if stats.BySourceType["primary"] != 1 || stats.BySourceType["tertiary"] != 1 {
		t.Fatalf("per-type counts wrong: %+v", stats.BySourceType)
	}
}

func TestRegistryOptionsOverrideTableAndLimits(t *testing.T) {
	t.Parallel()

	reg := NewRegistry().
		WithCredibility(0.9, 0.6, 0.3).
		WithLimits(10, 5)

	receipt := reg.Record(Claim{Statement: "short one", SourceType: "secondary"})
	if receipt.Credibility != 0.6 {
		t.Fatalf("credibility %v, want overridden 0.6", receipt.Credibility)
	}

	long := reg.Record(Claim{Statement: "far beyond ten characters", Source: "sourceurl", SourceType: "primary"})
	if !long.Truncated {
		t.Fatal("expected truncation under the tightened limits")
	}
	fact, ok := reg.Get(long.FactID)
	if !ok {
		t.Fatalf("fact %s missing", long.FactID)
	}
	if len(fact.Statement) != 10 || len(fact.Source) != 5 {
		t.Fatalf("limits not applied: statement %d chars, source %d chars", len(fact.Statement), len(fact.Source))
	}

	defaults := NewRegistry().WithCredibility(0, 0, 0)
	if r := defaults.Record(Claim{Statement: "keeps table", SourceType: "primary"}); r.Credibility != 0.95 {
		t.Fatalf("zero overrides should keep defaults, got %v", r.Credibility)
	}
}
