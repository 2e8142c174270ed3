// Package retry implements the Retry/Wait Engine (spec §4.6): it classifies
// adapter errors into the spec's four-way Kind taxonomy, applies jittered
// exponential backoff bounded by a wall-clock retry budget, and honours
// rate-limit wait hints up to a hard timeout ceiling. Grounded on the
// teacher's llm/retry/backoff.go (policy struct, jittered exponential
// backoff loop) and llm/circuitbreaker/breaker.go (timeout-wrapped call),
// rewritten against the spec's Retryable/RateLimited/Fatal/Cancelled kinds
// instead of the teacher's "retry everything not excluded" policy.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/config"
	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/ledger"
	"github.com/harrowgate/llmgate/types"
)

// Attempt records one call attempt for logging and ledger purposes.
type Attempt struct {
	Index int
	Delay time.Duration
	Kind  Kind
	Err   error
}

// Engine wraps adapter invocations with spec §4.6's backoff/wait policy.
type Engine struct {
	cfg     config.ResilienceConfig
	ledger  *ledger.Ledger
	logger  *zap.Logger
	metrics *metrics.Collector
}

func New(cfg config.ResilienceConfig, l *ledger.Ledger, logger *zap.Logger, m *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, ledger: l, logger: logger, metrics: m}
}

// Do invokes fn, retrying on Retryable/RateLimited errors per spec §4.6.
// fn is called at least once; cumulative wait (backoff + rate-limit sleep)
// never exceeds retry_budget_s, and attempt count never exceeds
// max_retries+1. A RateLimited error whose required wait would exceed
// max_wait_timeout_s raises TimeoutExceeded instead of waiting.
func (e *Engine) Do(ctx context.Context, traceID, provider, model string, fn func(ctx context.Context, attempt int) error) error {
	var cumulativeWait time.Duration
	budget := secondsToDuration(e.cfg.RetryBudgetS)
	maxWait := secondsToDuration(e.cfg.MaxWaitTimeoutS)

	for attempt := 0; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		kind := Classify(ctx, err)
		if kind == KindCancelled {
			return err
		}
		if kind == KindFatal {
			return err
		}

		if attempt >= e.cfg.MaxRetries {
			return err
		}

		var delay time.Duration
		if kind == KindRateLimit {
			delay = e.rateLimitDelay(err)
			if e.cfg.WaitOnRateLimit && maxWait > 0 && cumulativeWait+delay > maxWait {
				return types.NewError(types.ErrTimeoutExceed,
					"rate-limit wait would exceed max_wait_timeout_s").
					WithCause(err).WithProvider(provider)
			}
			if !e.cfg.WaitOnRateLimit {
				return err
			}
		} else {
			delay = e.backoffDelay(attempt)
		}

		if budget > 0 && cumulativeWait+delay > budget {
			return err
		}

		e.logAttempt(traceID, provider, model, attempt, kind, delay, err)

		select {
		case <-ctx.Done():
			return types.NewError(types.ErrCancelled, "retry wait interrupted").WithCause(ctx.Err())
		case <-time.After(delay):
		}
		cumulativeWait += delay
	}
}

// backoffDelay implements delay_i = min(max_delay_s, base_delay_s * 2^i) *
// (1 + jitter in [0, 0.3]).
func (e *Engine) backoffDelay(attempt int) time.Duration {
	base := e.cfg.BaseDelayS * math.Pow(2, float64(attempt))
	if e.cfg.MaxDelayS > 0 && base > e.cfg.MaxDelayS {
		base = e.cfg.MaxDelayS
	}
	jitter := 1 + rand.Float64()*0.3
	return secondsToDuration(base * jitter)
}

// rateLimitDelay returns max(provider hint, backoff) per spec §4.6.
func (e *Engine) rateLimitDelay(err error) time.Duration {
	backoff := e.backoffDelay(0)
	if te, ok := types.AsError(err); ok && te.RetryAfter != nil && *te.RetryAfter > backoff {
		return *te.RetryAfter
	}
	return backoff
}

func (e *Engine) logAttempt(traceID, provider, model string, attempt int, kind Kind, delay time.Duration, err error) {
	e.logger.Debug("retry attempt",
		zap.String("trace_id", traceID),
		zap.Int("attempt", attempt),
		zap.String("kind", string(kind)),
		zap.Duration("delay", delay),
		zap.Error(err))

	if e.metrics != nil {
		e.metrics.RetryAttemptsTotal.WithLabelValues(provider, model, string(kind)).Inc()
	}

	if e.ledger == nil {
		return
	}
	status := types.StatusError
	if kind == KindRateLimit {
		status = types.StatusRateLimited
	}
	evt := types.LedgerEvent{
		EventID:      traceID + "-retry-" + itoa(attempt),
		TraceID:      traceID,
		EventType:    types.EventRetryAttempt,
		Provider:     provider,
		Model:        model,
		Status:       status,
		MetadataJSON: attemptMetadata(attempt, kind, delay, err),
		Timestamp:    nowSeconds(),
	}
	// Retry attempts are best-effort telemetry; a ledger write failure here
	// must not abort the retry loop itself.
	_ = e.ledger.Append(context.Background(), evt)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
