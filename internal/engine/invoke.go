package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/veliant/tribunal/internal/schema"
	"github.com/veliant/tribunal/internal/worker"
)

// validationFeedback is injected as a corrective user turn after a reply
// fails its output contract. The failed reply itself is replayed first so
// the worker sees exactly what it is correcting.
const validationFeedback = "VALIDATION ERROR: your previous output failed contract validation. Error details: %s. " +
	"Ensure the output matches the required structure exactly. " +
	"Output ONLY valid JSON matching the contract - no markdown, no preamble, no commentary."

// invoke runs one validated worker call. A reply that fails its contract is
// retried with corrective feedback up to the configured ceiling; the final
// outcome is returned even when invalid, because a permanently rejected
// output degrades the run rather than aborting it. Only context cancellation
// propagates as an error.
func (r *run) invoke(ctx context.Context, spec worker.Spec, msgs []worker.Message) (schema.Outcome, error) {
	attempts := r.eng.retries() + 1
	temperature, maxTokens := r.eng.cfg.ResolveWorkerOptions(spec.Role, spec.Temperature)

	conversation := append([]worker.Message(nil), msgs...)
	out := schema.Outcome{OutputKey: spec.OutputKey}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if attempt > 0 {
			r.trace.Append(EventValidationRetry, r.state.Phase(), map[string]any{
				"role":       spec.Role,
				"output_key": spec.OutputKey,
				"attempt":    attempt,
				"violations": violationText(out.Violations),
			})
		}

		resp, err := r.eng.client.Invoke(ctx, worker.Request{
			Role:        spec.Role,
			OutputKey:   spec.OutputKey,
			Instruction: spec.Instruction,
			Context:     conversation,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out = schema.Outcome{
				OutputKey:  spec.OutputKey,
				Violations: []schema.Violation{{Field: "worker", Message: err.Error()}},
				Retries:    attempt,
			}
			continue
		}

		out = schema.Check(spec.OutputKey, resp.Content)
		out.Retries = attempt
		if out.Valid {
			return out, nil
		}
		conversation = append(conversation,
			worker.Message{Role: "assistant", Content: resp.Content},
			worker.Message{Role: "user", Content: fmt.Sprintf(validationFeedback, violationText(out.Violations))},
		)
	}
	return out, nil
}

// invokeAccepting wraps invoke with the degradation policy: a permanently
// invalid outcome is flagged and kept, never dropped.
func (r *run) invokeAccepting(ctx context.Context, spec worker.Spec, msgs []worker.Message) (schema.Outcome, error) {
	out, err := r.invoke(ctx, spec, msgs)
	if err != nil {
		return out, err
	}
	if !out.Valid {
		r.state.Degrade(r.state.Phase(), fmt.Sprintf(
			"%s output kept degraded after %d retries: %s",
			spec.Role, out.Retries, violationText(out.Violations)))
	}
	return out, nil
}

func violationText(violations []schema.Violation) string {
	if len(violations) == 0 {
		return "no violations recorded"
	}
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}
