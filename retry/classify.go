package retry

import (
	"context"
	"errors"

	"github.com/harrowgate/llmgate/types"
)

// Kind is the spec's four-way error taxonomy (§4.6), distinct from
// types.ErrorCode: several ErrorCodes (e.g. NoEndpoint, Config) never reach
// the retry engine at all, and Kind is what the backoff loop branches on.
type Kind string

const (
	KindRetryable  Kind = "retryable"
	KindRateLimit  Kind = "rate_limited"
	KindFatal      Kind = "fatal"
	KindCancelled  Kind = "cancelled"
)

// Classify maps an adapter error to the retry engine's four-way kind.
// Grounded on the teacher's isRetryable (llm/retry/backoff.go), generalized
// from "everything not excluded" to the spec's explicit taxonomy: only
// ErrProvider or ErrTimeoutExceed with Retryable=true and bare transport
// errors are Retryable,
// ErrRateLimited is its own kind, ctx cancellation is Cancelled, and
// everything else (auth, safety, quota, config, no-endpoint) is Fatal.
func Classify(ctx context.Context, err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return KindCancelled
	}

	e, ok := types.AsError(err)
	if !ok {
		// Unclassified transport-level errors (network resets, timeouts
		// surfaced as plain errors by a dumb adapter) default to retryable.
		return KindRetryable
	}

	switch e.Code {
	case types.ErrCancelled:
		return KindCancelled
	case types.ErrRateLimited:
		return KindRateLimit
	case types.ErrProvider, types.ErrTimeoutExceed:
		if e.Retryable {
			return KindRetryable
		}
		return KindFatal
	default:
		return KindFatal
	}
}
