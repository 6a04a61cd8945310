package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veliant/tribunal/internal/research"
	"github.com/veliant/tribunal/internal/schema"
	"github.com/veliant/tribunal/internal/worker"
)

// Research track labels, also used as the recorded_by stamp on facts.
const (
	TrackConfirmatory    = "confirmatory"
	TrackDisconfirmatory = "disconfirmatory"
)

func trackForRole(role string) string {
	if role == worker.RoleDisconfirmatory {
		return TrackDisconfirmatory
	}
	return TrackConfirmatory
}

// runResearchTrack drives one research track across every disagreement
// point: search, hand the findings to the track's worker, then register the
// facts it extracts. Search failures degrade the track; they never abort it.
func (r *run) runResearchTrack(ctx context.Context, role string, points []DisagreementPoint) (TrackReport, error) {
	spec, err := roleSpec(role)
	if err != nil {
		return TrackReport{}, err
	}
	scribe := r.state.Scribe(trackForRole(role))
	report := TrackReport{Track: scribe.Track()}

	var findings strings.Builder
	for _, point := range points {
		query := trackQuery(role, point)
		if query == "" {
			continue
		}
		results, err := r.search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			failure := fmt.Sprintf("%s: %v", query, err)
			report.SearchFailures = append(report.SearchFailures, failure)
			report.Degraded = true
			r.trace.Append(EventSearchDegraded, PhaseTargetedResearch, map[string]any{
				"track": report.Track,
				"query": query,
				"error": err.Error(),
			})
			r.state.Degrade(PhaseTargetedResearch, fmt.Sprintf("%s track proceeding on reduced results: %v", report.Track, err))
			continue
		}
		fmt.Fprintf(&findings, "Results for %q:\n", query)
		if len(results) == 0 {
			findings.WriteString("- no results returned\n")
		}
		for _, res := range results {
			fmt.Fprintf(&findings, "- %s: %s (%s)\n", res.Title, res.Snippet, res.URL)
		}
	}

	out, err := r.invokeAccepting(ctx, spec, r.trackContext(report.Track, points, findings.String()))
	if err != nil {
		return report, err
	}
	if !out.Valid {
		report.Degraded = true
	}
	report.Summary = schema.Str(out.Payload, "summary")

	for _, rec := range schema.Records(out.Payload, "facts") {
		statement := strings.TrimSpace(schema.Str(rec, "statement"))
		if statement == "" {
			continue
		}
		var override *float64
		if v, ok := schema.Num(rec, "credibility_override"); ok {
			override = &v
		}
		receipt := scribe.Record(statement, schema.Str(rec, "source"), schema.Str(rec, "source_type"), override)
		report.Receipts = append(report.Receipts, receipt)
	}
	return report, nil
}

// trackQuery picks the query a track owns for one disagreement point. The
// research objective stands in when the dedicated query is missing.
func trackQuery(role string, point DisagreementPoint) string {
	query := point.ConfirmatoryQuery
	if role == worker.RoleDisconfirmatory {
		query = point.DisconfirmatoryQuery
	}
	if strings.TrimSpace(query) == "" {
		query = point.ResearchObjective
	}
	return strings.TrimSpace(query)
}

// search runs one query through the shared searcher with the recovery
// ladder: a rate-limit refusal backs off one throttle interval and retries
// once; any other transport failure retries once immediately. The second
// failure is the caller's to degrade on. A nil searcher (offline mode)
// yields no results and no error.
func (r *run) search(ctx context.Context, query string) ([]research.Result, error) {
	if r.eng.searcher == nil {
		return nil, nil
	}
	max := r.eng.cfg.Research.ResultCount
	results, err := r.eng.searcher.Search(ctx, query, max)
	if err == nil {
		return results, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if research.RateLimited(err) {
		interval := time.Duration(r.eng.cfg.Research.MinIntervalMillis) * time.Millisecond
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	results, err = r.eng.searcher.Search(ctx, query, max)
	if err == nil {
		return results, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, err
}
