// Package budget implements the Budget Controller (spec §4.4): it uses the
// Ledger's day-scoped spend aggregate and the estimated cost of a pending
// call to admit, reject, or warn. Grounded on the teacher's
// llm/budget/token_budget.go (alert-threshold/window shape) and
// llm/observability/cost.go (cost tracking), re-pointed at the Ledger as
// the authoritative source of spend rather than in-memory atomics — the
// spec requires the Ledger, not a local counter, to own spend_today.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/config"
	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/ledger"
	"github.com/harrowgate/llmgate/types"
)

// Decision is the outcome of Check.
type Decision string

const (
	Allow Decision = "allow"
	Warn  Decision = "warn"
	Reject Decision = "reject"
)

// Controller is the process-owned Budget Controller (spec §9: no module
// singletons — created at resolver construction and injected into the
// Orchestrator).
type Controller struct {
	cfg     config.BudgetConfig
	ledger  *ledger.Ledger
	logger  *zap.Logger
	metrics *metrics.Collector

	mu           sync.Mutex
	warnedToday  bool
	warnedDate   string
	cachedTotal  float64
	cachedAt     time.Time
}

func New(cfg config.BudgetConfig, l *ledger.Ledger, logger *zap.Logger, m *metrics.Collector) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, ledger: l, logger: logger, metrics: m}
}

// Check implements spec §4.4's admission rule. In best-effort mode
// (default), no hold is recorded. In strict mode, a precheck_hold is
// written with Sync=true and Allow is returned only once it is durable —
// the synchronization point that makes the strict-mode race test (spec §8
// scenario 5) exact. The whole read-decide-write sequence runs under c.mu
// so two concurrent calls can't both observe the pre-hold spend_today and
// both get Allow before either hold lands.
func (c *Controller) Check(ctx context.Context, traceID, provider, model string, estimatedCostUSD float64) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	spend, err := c.ledger.SpendToday(ctx)
	if err != nil {
		return Reject, fmt.Errorf("spend_today: %w", err)
	}

	if c.metrics != nil {
		c.metrics.BudgetSpendUSD.WithLabelValues(provider).Set(spend.TotalUSD)
	}

	projected := spend.TotalUSD + estimatedCostUSD
	if c.cfg.DailySpendLimitUSD <= 0 || projected > c.cfg.DailySpendLimitUSD {
		if c.metrics != nil {
			c.metrics.BudgetRejectionsTotal.WithLabelValues(provider).Inc()
		}
		return Reject, nil
	}

	decision := Allow
	if c.cfg.DailySpendLimitUSD > 0 && projected/c.cfg.DailySpendLimitUSD >= c.cfg.WarnRatio {
		if c.fireWarningOnceLocked() {
			c.logger.Warn("budget warn_ratio threshold crossed",
				zap.Float64("projected_usd", projected),
				zap.Float64("limit_usd", c.cfg.DailySpendLimitUSD))
			if c.metrics != nil {
				c.metrics.BudgetWarningsTotal.WithLabelValues(provider).Inc()
			}
			decision = Warn
		}
	}

	if c.cfg.Strict {
		est := estimatedCostUSD
		evt := types.LedgerEvent{
			EventID:    traceID + "-hold",
			TraceID:    traceID,
			EventType:  types.EventPrecheckHold,
			Provider:   provider,
			Model:      model,
			CostEstUSD: &est,
			Status:     types.StatusOK,
			Timestamp:  nowSeconds(),
			Sync:       true,
		}
		if err := c.ledger.Append(ctx, evt); err != nil {
			return Reject, fmt.Errorf("precheck hold: %w", err)
		}
	}

	return decision, nil
}

// fireWarningOnceLocked requires c.mu to already be held by the caller.
func (c *Controller) fireWarningOnceLocked() bool {
	today := time.Now().Format("2006-01-02")
	if c.warnedDate != today {
		c.warnedDate = today
		c.warnedToday = false
	}
	if c.warnedToday {
		return false
	}
	c.warnedToday = true
	return true
}

// Commit writes the terminal commit event, superseding any hold for
// aggregation (spec §4.4, §4.3).
func (c *Controller) Commit(ctx context.Context, traceID, provider, model string, actualCostUSD float64, usage types.TokenUsage, usageJSON, timingJSON string, status types.LedgerStatus) error {
	cost := actualCostUSD
	evt := types.LedgerEvent{
		EventID:       traceID + "-commit",
		TraceID:       traceID,
		EventType:     types.EventCommit,
		Provider:      provider,
		Model:         model,
		UsageJSON:     usageJSON,
		CostActualUSD: &cost,
		Status:        status,
		TimingJSON:    timingJSON,
		Timestamp:     nowSeconds(),
	}
	return c.ledger.Append(ctx, evt)
}

// Cancel writes a cancel event; aggregation drops the hold (spec §4.4).
func (c *Controller) Cancel(ctx context.Context, traceID, provider, model, reason string) error {
	evt := types.LedgerEvent{
		EventID:      traceID + "-cancel",
		TraceID:      traceID,
		EventType:    types.EventCancel,
		Provider:     provider,
		Model:        model,
		Status:       types.StatusCancelled,
		MetadataJSON: fmt.Sprintf(`{"reason":%q}`, reason),
		Timestamp:    nowSeconds(),
	}
	return c.ledger.Append(ctx, evt)
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
