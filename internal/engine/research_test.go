package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/veliant/tribunal/internal/research"
	"github.com/veliant/tribunal/internal/verdict"
	"github.com/veliant/tribunal/internal/worker"
)

type searchReply struct {
	results []research.Result
	err     error
}

// scriptedSearcher replays queued replies in order; once drained it answers
// every query with empty results.
type scriptedSearcher struct {
	mu      sync.Mutex
	replies []searchReply
	calls   int
}

func (s *scriptedSearcher) Search(ctx context.Context, query string, max int) ([]research.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.replies) == 0 {
		return nil, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply.results, reply.err
}

func (s *scriptedSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func transportFailure() error {
	return &research.TransportError{Op: "exchange", Err: errors.New("connection reset")}
}

func TestSearchRetriesTransportErrorOnce(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{replies: []searchReply{
		{err: transportFailure()},
		{results: []research.Result{{Title: "hit", Snippet: "snippet", URL: "https://example.org"}}},
	}}
	r := newTestRun(t, offlineConfig(), worker.NewScripted(), WithSearcher(searcher))

	results, err := r.search(context.Background(), "checkout latency regression")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "hit" {
		t.Fatalf("results = %v", results)
	}
	if got := searcher.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestSearchBacksOffOnRateLimit(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig()
	cfg.Research.MinIntervalMillis = 5
	searcher := &scriptedSearcher{replies: []searchReply{
		{err: &research.ThrottleError{Detail: "429 Too Many Requests"}},
		{results: []research.Result{{Title: "hit"}}},
	}}
	r := newTestRun(t, cfg, worker.NewScripted(), WithSearcher(searcher))

	results, err := r.search(context.Background(), "checkout latency regression")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	if got := searcher.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestSearchSecondFailurePropagates(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{replies: []searchReply{
		{err: transportFailure()},
		{err: transportFailure()},
	}}
	r := newTestRun(t, offlineConfig(), worker.NewScripted(), WithSearcher(searcher))

	_, err := r.search(context.Background(), "checkout latency regression")
	var te *research.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if got := searcher.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestSearchNilSearcherYieldsNothing(t *testing.T) {
	t.Parallel()

	r := newTestRun(t, offlineConfig(), worker.NewScripted())
	results, err := r.search(context.Background(), "anything")
	if err != nil || results != nil {
		t.Fatalf("results=%v err=%v, want nil/nil", results, err)
	}
}

func TestTrackQuerySelection(t *testing.T) {
	t.Parallel()

	point := DisagreementPoint{
		Topic:                "latency cause",
		ResearchObjective:    "establish the regression cause",
		ConfirmatoryQuery:    "rollout caused regression evidence",
		DisconfirmatoryQuery: "regression predates rollout evidence",
	}
	cases := []struct {
		name  string
		role  string
		point DisagreementPoint
		want  string
	}{
		{"confirmatory picks its query", worker.RoleConfirmatory, point, "rollout caused regression evidence"},
		{"disconfirmatory picks its query", worker.RoleDisconfirmatory, point, "regression predates rollout evidence"},
		{
			"missing query falls back to objective",
			worker.RoleConfirmatory,
			DisagreementPoint{ResearchObjective: "establish the regression cause"},
			"establish the regression cause",
		},
		{"nothing to ask", worker.RoleDisconfirmatory, DisagreementPoint{Topic: "x"}, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := trackQuery(tc.role, tc.point); got != tc.want {
				t.Fatalf("trackQuery = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResearchTrackDegradesOnPersistentSearchFailure(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{replies: []searchReply{
		{err: transportFailure()},
		{err: transportFailure()},
	}}
	r := newTestRun(t, offlineConfig(), worker.NewScripted(), WithSearcher(searcher))
	points := []DisagreementPoint{{
		Topic:             "latency cause",
		ResearchObjective: "establish the regression cause",
		ConfirmatoryQuery: "rollout caused regression evidence",
	}}

	report, err := r.runResearchTrack(context.Background(), worker.RoleConfirmatory, points)
	if err != nil {
		t.Fatalf("runResearchTrack: %v", err)
	}
	if !report.Degraded {
		t.Fatalf("track not degraded: %+v", report)
	}
	if len(report.SearchFailures) != 1 {
		t.Fatalf("search failures = %v", report.SearchFailures)
	}
	// The track still runs its worker and registers facts without search.
	if len(report.Receipts) == 0 {
		t.Fatalf("no facts registered despite a healthy worker")
	}

	degradations := r.state.Degradations()
	if len(degradations) != 1 || !strings.Contains(degradations[0], "reduced results") {
		t.Fatalf("degradations = %v", degradations)
	}
	var sawEvent bool
	for _, ev := range r.trace.Events() {
		if ev.Type == EventSearchDegraded {
			sawEvent = true
		}
	}
	if !sawEvent {
		t.Fatalf("search degradation not traced")
	}
}

func TestRunSurvivesSearchOutage(t *testing.T) {
	t.Parallel()

	// Every search fails twice; both tracks degrade but the run completes.
	searcher := &scriptedSearcher{replies: []searchReply{
		{err: transportFailure()},
		{err: transportFailure()},
		{err: transportFailure()},
		{err: transportFailure()},
	}}
	client := worker.NewScripted()
	eng := newOfflineEngine(t, client, WithSearcher(searcher))

	result, err := eng.Run(context.Background(), testQuestion)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Decision.Outcome != verdict.OutcomeCompleted {
		t.Fatalf("outcome = %q", result.Decision.Outcome)
	}
	for _, tr := range result.State.TrackReports {
		if !tr.Degraded || len(tr.SearchFailures) == 0 {
			t.Fatalf("track %s not degraded: %+v", tr.Track, tr)
		}
	}
	var sawCap bool
	for _, c := range result.Decision.Robustness.CapsApplied {
		if strings.Contains(c, "degraded outputs") {
			sawCap = true
		}
	}
	if !sawCap {
		t.Fatalf("caps = %v, want degradation cap", result.Decision.Robustness.CapsApplied)
	}
}

func TestTrackForRole(t *testing.T) {
	t.Parallel()

	if got := trackForRole(worker.RoleConfirmatory); got != TrackConfirmatory {
		t.Fatalf("trackForRole(confirmatory) = %q", got)
	}
	if got := trackForRole(worker.RoleDisconfirmatory); got != TrackDisconfirmatory {
		t.Fatalf("trackForRole(disconfirmatory) = %q", got)
	}
}
