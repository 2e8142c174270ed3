package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/harrowgate/llmgate/types"
)

// GenerateAsync is the cooperative-async dual of Generate (spec §4.7/§4.8:
// "asynchronous duals of both, with the same contract and cancellation
// surface"). It runs Generate on its own goroutine inside an errgroup so
// cancelling ctx propagates to the in-flight call exactly like the sync
// surface, and delivers the single result on the returned channel.
func (o *Orchestrator) GenerateAsync(ctx context.Context, parts []types.ContentPart, modelAlias string, cfgOverride *types.GenConfig) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resp, err := o.Generate(gctx, parts, modelAlias, cfgOverride)
		out <- AsyncResult{Response: resp, Err: err}
		return err
	})

	go func() {
		_ = g.Wait()
		close(out)
	}()

	return out
}

// AsyncResult is the single terminal value GenerateAsync delivers.
type AsyncResult struct {
	Response types.GenerationResponse
	Err      error
}

// StreamAsync is the cooperative-async dual of Stream: it calls Stream on
// the caller's goroutine and returns its channel unchanged, so events are
// pumped by Stream's own goroutine and ctx cancellation behaves the same.
func (o *Orchestrator) StreamAsync(ctx context.Context, parts []types.ContentPart, modelAlias string, cfgOverride *types.GenConfig) (<-chan types.StreamEvent, error) {
	return o.Stream(ctx, parts, modelAlias, cfgOverride)
}
