package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/veliant/tribunal/internal/schema"
	"github.com/veliant/tribunal/internal/worker"
)

// invocation pairs one worker spec with the context it runs against.
type invocation struct {
	spec worker.Spec
	msgs []worker.Message
}

// fanOut dispatches every invocation concurrently and joins on all of them
// before anything downstream runs. Results keep input order. The join is
// total: an invalid outcome lands in its slot instead of cancelling its
// siblings; only context cancellation aborts the group.
func (r *run) fanOut(ctx context.Context, calls []invocation) ([]schema.Outcome, error) {
	results := make([]schema.Outcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	if limit := r.eng.cfg.Worker.FanoutLimit; limit > 0 {
		g.SetLimit(limit)
	}
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			out, err := r.invokeAccepting(gctx, call.spec, call.msgs)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
