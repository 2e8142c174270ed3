// Package orchestrator implements the Request Orchestrator (spec §4.8): the
// public generate/stream surface that composes the Registry, Budget
// Controller, Rate Limiter, Retry/Wait Engine, and Ledger in the spec's
// fixed nine-step per-call sequence. Grounded on the teacher's
// llm/resilient_provider.go (decorator composition: retry wraps the
// adapter call, not the other way around) and llm/router.go's call-frame
// struct carrying trace ID, timers, and cumulative usage through a call.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/budget"
	"github.com/harrowgate/llmgate/config"
	"github.com/harrowgate/llmgate/internal/circuitbreaker"
	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/ledger"
	"github.com/harrowgate/llmgate/provider"
	"github.com/harrowgate/llmgate/ratelimit"
	"github.com/harrowgate/llmgate/registry"
	"github.com/harrowgate/llmgate/retry"
	"github.com/harrowgate/llmgate/types"
)

var tracer = otel.Tracer("github.com/harrowgate/llmgate/orchestrator")

// Orchestrator is the gateway's public surface. It owns no mutable shared
// state of its own; every shared component it composes is either immutable
// (MergedConfig), single-writer-owned (the Ledger), or independently
// mutex-guarded (Limiter, circuit-state registry) per spec §5.
type Orchestrator struct {
	cfg      *config.MergedConfig
	registry *registry.Registry
	circuit  *circuitbreaker.Registry
	budget   *budget.Controller
	limiter  *ratelimit.Limiter
	retry    *retry.Engine
	ledger   *ledger.Ledger
	adapters map[string]provider.Adapter
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func New(
	cfg *config.MergedConfig,
	reg *registry.Registry,
	circuit *circuitbreaker.Registry,
	budgetCtrl *budget.Controller,
	limiter *ratelimit.Limiter,
	retryEngine *retry.Engine,
	l *ledger.Ledger,
	adapters map[string]provider.Adapter,
	logger *zap.Logger,
	m *metrics.Collector,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg: cfg, registry: reg, circuit: circuit, budget: budgetCtrl, limiter: limiter,
		retry: retryEngine, ledger: l, adapters: adapters, logger: logger, metrics: m,
	}
}

// callFrame carries per-call state through the fixed sequence, grounded on
// the teacher's router.go ProviderSelection/call-context shape.
type callFrame struct {
	traceID   string
	t0        time.Time
	resolved  types.ResolvedCall
	adapter   provider.Adapter
	request   types.Request
	estTokens int
	estCost   float64
}

// Generate implements spec §4.8's generate() — the blocking sync surface.
func (o *Orchestrator) Generate(ctx context.Context, parts []types.ContentPart, modelAlias string, cfgOverride *types.GenConfig) (types.GenerationResponse, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.generate", trace.WithAttributes(
		attribute.String("model_alias", modelAlias)))
	defer span.End()

	frame, err := o.prepare(ctx, parts, modelAlias, cfgOverride)
	if err != nil {
		return types.GenerationResponse{}, err
	}
	defer o.recordDuration(frame, err)

	decision, err := o.checkBudget(ctx, frame)
	if err != nil {
		return types.GenerationResponse{}, err
	}
	_ = decision

	if err := o.reserve(ctx, frame); err != nil {
		return types.GenerationResponse{}, err
	}

	var resp types.GenerationResponse
	invokeErr := o.retry.Do(ctx, frame.traceID, frame.resolved.Spec.Provider, frame.resolved.Spec.Alias,
		func(ctx context.Context, attempt int) error {
			deadline, _ := ctx.Deadline()
			r, err := frame.adapter.Invoke(ctx, frame.request, deadline)
			if err == nil {
				resp = r
			}
			return err
		})

	if invokeErr != nil {
		o.finalizeFailure(ctx, frame, invokeErr)
		return types.GenerationResponse{}, invokeErr
	}

	o.finalizeSuccess(ctx, frame, resp)
	return resp, nil
}

// GenerateText is the `full_response=false` ergonomic surface (spec §6):
// returns only the content string.
func (o *Orchestrator) GenerateText(ctx context.Context, parts []types.ContentPart, modelAlias string, cfgOverride *types.GenConfig) (string, error) {
	resp, err := o.Generate(ctx, parts, modelAlias, cfgOverride)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// prepare implements spec §4.8 steps 1-4: allocate trace_id, resolve model,
// build the internal Request, and estimate cost.
func (o *Orchestrator) prepare(ctx context.Context, parts []types.ContentPart, modelAlias string, cfgOverride *types.GenConfig) (*callFrame, error) {
	_, span := tracer.Start(ctx, "orchestrator.resolve")
	defer span.End()

	traceID := uuid.NewString()
	t0 := time.Now()

	resolved, err := o.registry.Resolve(modelAlias)
	if err != nil {
		return nil, err
	}

	genCfg := types.DefaultGenConfig()
	if cfgOverride != nil {
		genCfg = *cfgOverride
	}

	req := types.Request{
		TraceID:  traceID,
		Model:    resolved.Spec,
		Endpoint: resolved.Endpoint,
		Parts:    parts,
		Config:   genCfg,
	}

	adapter, ok := o.adapters[resolved.Spec.Provider]
	if !ok {
		return nil, types.NewError(types.ErrNoEndpoint,
			fmt.Sprintf("no adapter registered for provider %q", resolved.Spec.Provider))
	}

	estTokens := adapter.EstimateTokens(req)
	estCost := estimateCost(resolved.Spec, estTokens, maxOutputTokens(genCfg))

	return &callFrame{
		traceID:   traceID,
		t0:        t0,
		resolved:  resolved,
		adapter:   adapter,
		request:   req,
		estTokens: estTokens,
		estCost:   estCost,
	}, nil
}

// checkBudget implements spec §4.8 step 5.
func (o *Orchestrator) checkBudget(ctx context.Context, f *callFrame) (budget.Decision, error) {
	_, span := tracer.Start(ctx, "orchestrator.budget_check")
	defer span.End()

	decision, err := o.budget.Check(ctx, f.traceID, f.resolved.Spec.Provider, f.resolved.Spec.Alias, f.estCost)
	if err != nil {
		return decision, err
	}
	if decision == budget.Reject {
		_ = o.budget.Cancel(ctx, f.traceID, f.resolved.Spec.Provider, f.resolved.Spec.Alias, "quota")
		return decision, types.NewError(types.ErrQuotaExceeded, "daily spend limit would be exceeded").
			WithProvider(f.resolved.Spec.Provider)
	}
	return decision, nil
}

// reserve implements spec §4.8 step 6: Limiter.reserve, honouring
// wait_on_rate_limit and the retry budget ceiling on the wait itself.
func (o *Orchestrator) reserve(ctx context.Context, f *callFrame) error {
	_, span := tracer.Start(ctx, "orchestrator.limiter_reserve")
	defer span.End()

	limits := f.resolved.Spec.Limits
	provider, model := f.resolved.Spec.Provider, f.resolved.Spec.Alias
	cumulativeWait := time.Duration(0)
	budgetCeiling := secondsToDuration(o.cfg.Resilience.RetryBudgetS)

	for {
		res := o.limiter.Reserve(f.traceID, limits, provider, model, f.estTokens)
		o.recordReservation(provider, model, res)

		switch res.Outcome {
		case ratelimit.Ready:
			return nil
		case ratelimit.Exhausted:
			return types.NewError(types.ErrRateLimited, res.Reason).WithProvider(provider)
		case ratelimit.WaitHint:
			if !o.cfg.Resilience.WaitOnRateLimit {
				return types.NewError(types.ErrRateLimited, "rate limited, wait_on_rate_limit disabled").WithProvider(provider)
			}
			if budgetCeiling > 0 && cumulativeWait+res.WaitFor > budgetCeiling {
				return types.NewError(types.ErrRateLimited, "rate-limit wait would exceed retry_budget_s").WithProvider(provider)
			}
			select {
			case <-ctx.Done():
				return types.NewError(types.ErrCancelled, "reserve wait interrupted").WithCause(ctx.Err())
			case <-time.After(res.WaitFor):
			}
			cumulativeWait += res.WaitFor
			if o.metrics != nil {
				o.metrics.LimiterWaitSeconds.WithLabelValues(provider, model).Observe(res.WaitFor.Seconds())
			}
		}
	}
}

func (o *Orchestrator) recordReservation(provider, model string, res ratelimit.Reservation) {
	if o.metrics == nil {
		return
	}
	o.metrics.LimiterReservationsTotal.WithLabelValues(provider, model, string(res.Outcome)).Inc()
	if res.Outcome == ratelimit.Exhausted {
		o.metrics.LimiterExhaustedTotal.WithLabelValues(provider, model, res.Reason).Inc()
	}
}

// finalizeSuccess implements spec §4.8 step 8.
func (o *Orchestrator) finalizeSuccess(ctx context.Context, f *callFrame, resp types.GenerationResponse) {
	actualCost := actualCostFor(f.resolved.Spec, resp, f.estCost)
	status := types.StatusOK
	if resp.FinishReason == types.FinishCancelled {
		status = types.StatusCancelled
	}

	_ = o.budget.Commit(ctx, f.traceID, f.resolved.Spec.Provider, f.resolved.Spec.Alias, actualCost,
		resp.Usage, usageJSON(resp.Usage), timingJSON(time.Since(f.t0)), status)
	o.limiter.Commit(f.traceID, f.resolved.Spec.Provider, f.resolved.Spec.Alias, resp.Usage.TotalTokens)
	if o.circuit != nil && status != types.StatusCancelled {
		o.circuit.RecordSuccess(f.resolved.Endpoint.Name)
	}
}

// finalizeFailure implements spec §4.8 step 9.
func (o *Orchestrator) finalizeFailure(ctx context.Context, f *callFrame, err error) {
	o.logger.Warn("generate failed", zap.String("trace_id", f.traceID), zap.Error(err))
	code := types.GetErrorCode(err)
	status := types.StatusError
	if code == types.ErrRateLimited {
		status = types.StatusRateLimited
	} else if code == types.ErrCancelled {
		status = types.StatusCancelled
	}
	_ = o.budget.Commit(ctx, f.traceID, f.resolved.Spec.Provider, f.resolved.Spec.Alias, f.estCost,
		types.TokenUsage{}, "", timingJSON(time.Since(f.t0)), status)
	if o.circuit != nil && code != types.ErrCancelled {
		o.circuit.RecordFailure(f.resolved.Endpoint.Name)
	}
}

func (o *Orchestrator) recordDuration(f *callFrame, err error) {
	if o.metrics == nil || f == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = string(types.GetErrorCode(err))
	}
	o.metrics.OrchestratorRequestDuration.
		WithLabelValues(f.resolved.Spec.Provider, f.resolved.Spec.Alias, status).
		Observe(time.Since(f.t0).Seconds())
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
