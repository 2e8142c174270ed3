// Package provider defines the Provider Adapter Contract (spec §4.7): the
// polymorphic interface the Orchestrator invokes, plus reference/test
// adapters. Vendor wire adapters (HTTP/WebSocket transcoding for individual
// providers) are out of scope per spec's Non-goals — this package provides
// only the contract and adapters that exist to exercise it in tests.
package provider

import (
	"context"
	"time"

	"github.com/harrowgate/llmgate/types"
)

// Adapter is the contract every provider implementation satisfies. Adapters
// own authentication, wire protocol, and translating provider-specific
// usage into types.TokenUsage; they normalise errors into the retry
// engine's taxonomy (types.ErrorCode) and must never write to the Ledger
// directly (spec §4.7).
type Adapter interface {
	// Invoke performs one blocking generation call, bounded by deadline.
	Invoke(ctx context.Context, req types.Request, deadline time.Time) (types.GenerationResponse, error)

	// Stream returns a channel of StreamEvent with at most one terminal
	// IsFinal=true event. If ctx is cancelled before the terminal event,
	// the adapter releases its transport and closes the channel.
	Stream(ctx context.Context, req types.Request, deadline time.Time) (<-chan types.StreamEvent, error)

	// EstimateTokens returns a best-effort, conservative-upper-bound
	// estimate of input tokens for req (spec §4.7).
	EstimateTokens(req types.Request) int

	// Name identifies the adapter/provider for logging and metrics.
	Name() string
}

// AsyncAdapter is the cooperative-async dual of Adapter (spec §4.7: "async
// duals of both, same contract and cancellation surface"). The Orchestrator
// does not check for it: GenerateAsync and StreamAsync always go through
// Invoke/Stream, whether or not an Adapter also implements AsyncAdapter.
type AsyncAdapter interface {
	Adapter

	InvokeAsync(ctx context.Context, req types.Request, deadline time.Time) (<-chan InvokeResult, error)
	StreamAsync(ctx context.Context, req types.Request, deadline time.Time) (<-chan types.StreamEvent, error)
}

// InvokeResult is the async dual of Invoke's return value, delivered once
// on the channel InvokeAsync returns.
type InvokeResult struct {
	Response types.GenerationResponse
	Err      error
}
