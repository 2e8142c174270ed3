package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

// testHarness wires a full, real Orchestrator against an on-disk temp
// ledger and a MockAdapter, mirroring how a production resolver assembles
// the gateway (spec §9: construct once, inject everywhere).
type testHarness struct {
	orch    *Orchestrator
	adapter *provider.MockAdapter
	led     *ledger.Ledger
}

func newHarness(t *testing.T, limits types.Limits, dailyLimit float64) *testHarness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(ledger.DefaultStoreConfig(path), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.NewCollector("llmgate_orch_test_" + t.Name())
	writer := ledger.NewWriter(store, zap.NewNop(), m)
	led := ledger.New(store, writer)
	t.Cleanup(func() { led.Shutdown(context.Background()) })

	spec := types.ModelSpec{
		Alias:    "fast",
		Provider: "mock",
		ModelID:  "mock-1",
		UnitType: types.UnitToken,
		Pricing:  types.Pricing{InputPer1M: 1, OutputPer1M: 2},
		Limits:   limits,
	}
	cfg := &config.MergedConfig{
		ModelRegistry: map[string]types.ModelSpec{"fast": spec},
		Endpoints:     []types.Endpoint{{Name: "mock-ep", URL: "http://mock", Region: "us", Provider: "mock"}},
		Resilience: config.ResilienceConfig{
			MaxRetries: 3, BaseDelayS: 0.01, MaxDelayS: 0.05,
			WaitOnRateLimit: true, RetryBudgetS: 5, MaxWaitTimeoutS: 5,
		},
		Budget: config.BudgetConfig{DailySpendLimitUSD: dailyLimit, WarnRatio: 0.8},
	}

	circuit := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), zap.NewNop())
	reg := registry.New(cfg, circuit, zap.NewNop())
	budgetCtrl := budget.New(cfg.Budget, led, zap.NewNop(), m)
	limiter := ratelimit.New(nil)
	retryEngine := retry.New(cfg.Resilience, led, zap.NewNop(), m)

	adapter := provider.NewMockAdapter()
	adapters := map[string]provider.Adapter{"mock": adapter}

	orch := New(cfg, reg, circuit, budgetCtrl, limiter, retryEngine, led, adapters, zap.NewNop(), m)
	return &testHarness{orch: orch, adapter: adapter, led: led}
}

func parts() []types.ContentPart {
	return []types.ContentPart{types.TextPart("hello")}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	h.adapter.WithResponse("hi there")

	resp, err := h.orch.Generate(context.Background(), parts(), "fast", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)

	assert.Eventually(t, func() bool {
		spend, err := h.led.SpendToday(context.Background())
		return err == nil && spend.TotalUSD > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOrchestrator_BudgetRejects(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 0.0000001)
	h.adapter.WithResponse("hi there")

	_, err := h.orch.Generate(context.Background(), parts(), "fast", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrQuotaExceeded, types.GetErrorCode(err))
}

func TestOrchestrator_RateLimitExhaustedSurfacesImmediately(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 0}, 100)
	h.adapter.WithResponse("hi there")

	_, err := h.orch.Generate(context.Background(), parts(), "fast", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}

func TestOrchestrator_RateLimitWaitBeyondRetryBudgetRejects(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 1, TPM: 100000, RPD: 1000}, 100)
	h.adapter.WithResponse("first")

	ctx := context.Background()
	_, err := h.orch.Generate(ctx, parts(), "fast", nil)
	require.NoError(t, err)

	// Second call exceeds rpm=1 within the same minute: limiter issues a
	// WaitHint whose wait would exceed our test's patience, so bound the
	// wait via a short retry budget ceiling to force an immediate reject
	// rather than hang the test for up to 60s.
	h.orch.cfg.Resilience.RetryBudgetS = 0.01
	_, err = h.orch.Generate(ctx, parts(), "fast", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}

func TestOrchestrator_RetryThenFatal(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	fatalErr := types.NewError(types.ErrAuth, "invalid api key").WithRetryable(false)
	// Fail twice with a retryable error, then a fatal one — a custom invoke
	// func gives precise control over the sequence.
	calls := 0
	h.adapter.WithInvokeFunc(func(ctx context.Context, req types.Request) (types.GenerationResponse, error) {
		calls++
		if calls <= 2 {
			return types.GenerationResponse{}, types.NewError(types.ErrProvider, "upstream hiccup").WithRetryable(true)
		}
		return types.GenerationResponse{}, fatalErr
	})

	_, err := h.orch.Generate(context.Background(), parts(), "fast", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrAuth, types.GetErrorCode(err))
	assert.Equal(t, 3, calls)
}

func TestOrchestrator_StreamHappyPath(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	h.adapter.WithStreamChunks([]string{"hel", "lo", "!"})

	ch, err := h.orch.Stream(context.Background(), parts(), "fast", nil)
	require.NoError(t, err)

	var got string
	for evt := range ch {
		got += evt.Delta
	}
	assert.Equal(t, "hello!", got)
}

func TestOrchestrator_StreamCancelMidway(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	h.adapter.WithStreamChunks([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.orch.Stream(ctx, parts(), "fast", nil)
	require.NoError(t, err)

	// The mock's upstream channel is pre-buffered, so a cancel racing
	// against an already-queued delta is inherently nondeterministic in
	// exactly how many more deltas land before the stream ends; what
	// matters is that cancelling terminates the stream (no hang) and at
	// least the deltas already read are observed.
	count := 0
	for range ch {
		count++
		if count == 3 {
			cancel()
		}
	}
	assert.GreaterOrEqual(t, count, 3)
}

func TestOrchestrator_NoAdapterRegistered(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	h.orch.adapters = map[string]provider.Adapter{}

	_, err := h.orch.Generate(context.Background(), parts(), "fast", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoEndpoint, types.GetErrorCode(err))
}

func TestOrchestrator_UnknownModelAlias(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	_, err := h.orch.Generate(context.Background(), parts(), "does-not-exist", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestOrchestrator_GenerateText(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	h.adapter.WithResponse("plain text")

	text, err := h.orch.GenerateText(context.Background(), parts(), "fast", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", text)
}

func TestOrchestrator_GenerateAsyncPropagatesCancellation(t *testing.T) {
	h := newHarness(t, types.Limits{RPM: 100, TPM: 100000, RPD: 1000}, 100)
	h.adapter.WithDelay(200 * time.Millisecond).WithResponse("slow")

	ctx, cancel := context.WithCancel(context.Background())
	resCh := h.orch.GenerateAsync(ctx, parts(), "fast", nil)
	cancel()

	res := <-resCh
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, context.Canceled) || types.GetErrorCode(res.Err) != "")
}
