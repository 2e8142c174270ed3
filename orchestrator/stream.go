package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/harrowgate/llmgate/types"
)

// streamDrainGrace bounds how long pumpStream waits for one more adapter
// event after ctx.Done() before giving up on the transport (spec §5: every
// suspending operation returns within a bounded grace).
const streamDrainGrace = 100 * time.Millisecond

// Stream implements spec §4.8's stream(): the Orchestrator reserves and
// budgets exactly like Generate, then re-yields the adapter's StreamEvent
// sequence to the caller while accumulating usage for the terminal commit.
// If the caller cancels ctx, the adapter stream is closed and the eventual
// commit carries status=cancelled (spec §4.8, §8 scenario 6). A caller that
// stops reading without cancelling ctx is not detected: the pump goroutine
// stays blocked on its send until ctx is done, and no commit is written
// before then.
func (o *Orchestrator) Stream(ctx context.Context, parts []types.ContentPart, modelAlias string, cfgOverride *types.GenConfig) (<-chan types.StreamEvent, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.stream")

	frame, err := o.prepare(ctx, parts, modelAlias, cfgOverride)
	if err != nil {
		span.End()
		return nil, err
	}

	if _, err := o.checkBudget(ctx, frame); err != nil {
		span.End()
		return nil, err
	}
	if err := o.reserve(ctx, frame); err != nil {
		span.End()
		return nil, err
	}

	upstream, err := frame.adapter.Stream(ctx, frame.request, deadlineOrZero(ctx))
	if err != nil {
		span.End()
		o.finalizeFailure(ctx, frame, err)
		return nil, err
	}

	out := make(chan types.StreamEvent)
	go o.pumpStream(ctx, span, frame, upstream, out)
	return out, nil
}

func (o *Orchestrator) pumpStream(ctx context.Context, span trace.Span, f *callFrame, upstream <-chan types.StreamEvent, out chan<- types.StreamEvent) {
	defer close(out)
	defer span.End()
	defer o.recordDuration(f, nil)

	var aggregated types.TokenUsage
	var content string
	abandoned := false

	for {
		select {
		case evt, ok := <-upstream:
			if !ok {
				resp := types.GenerationResponse{
					Content:      content,
					Model:        f.resolved.Spec.Alias,
					Provider:     f.resolved.Spec.Provider,
					Usage:        aggregated,
					FinishReason: types.FinishStop,
					TraceID:      f.traceID,
				}
				if abandoned {
					resp.FinishReason = types.FinishCancelled
				}
				o.finalizeSuccess(ctx, f, resp)
				return
			}
			content += evt.Delta
			if evt.Usage != nil {
				aggregated.Add(*evt.Usage)
			}
			if evt.Error != "" {
				o.finalizeFailure(ctx, f, types.NewError(evt.Error, "adapter stream error"))
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				abandoned = true
			}
		case <-ctx.Done():
			abandoned = true
			// Give the adapter one bounded chance to observe ctx.Done() and
			// release its transport (spec §4.7); cancellation must still
			// return within the spec §5 grace period (~100ms), so this
			// drains at most one more event rather than ranging unbounded.
			drainTimer := time.NewTimer(streamDrainGrace)
			select {
			case <-upstream:
			case <-drainTimer.C:
			}
			drainTimer.Stop()
			resp := types.GenerationResponse{
				Content:      content,
				Model:        f.resolved.Spec.Alias,
				Provider:     f.resolved.Spec.Provider,
				Usage:        aggregated,
				FinishReason: types.FinishCancelled,
				TraceID:      f.traceID,
			}
			o.finalizeSuccess(ctx, f, resp)
			return
		}
	}
}

func deadlineOrZero(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
