package budget

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/config"
	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/ledger"
	"github.com/harrowgate/llmgate/types"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(ledger.DefaultStoreConfig(path), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.NewCollector("llmgate_budget_test_" + t.Name())
	writer := ledger.NewWriter(store, zap.NewNop(), m)
	l := ledger.New(store, writer)
	t.Cleanup(func() { l.Shutdown(context.Background()) })
	return l
}

func TestController_AllowsUnderLimit(t *testing.T) {
	l := newTestLedger(t)
	c := New(config.BudgetConfig{DailySpendLimitUSD: 10, WarnRatio: 0.9}, l, zap.NewNop(), nil)

	decision, err := c.Check(context.Background(), "t1", "openai", "fast", 1.0)
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)
}

func TestController_RejectsOverLimit(t *testing.T) {
	l := newTestLedger(t)
	c := New(config.BudgetConfig{DailySpendLimitUSD: 1, WarnRatio: 0.9}, l, zap.NewNop(), nil)

	decision, err := c.Check(context.Background(), "t1", "openai", "fast", 5.0)
	require.NoError(t, err)
	assert.Equal(t, Reject, decision)
}

func TestController_ZeroLimitAlwaysRejects(t *testing.T) {
	l := newTestLedger(t)
	c := New(config.BudgetConfig{DailySpendLimitUSD: 0}, l, zap.NewNop(), nil)

	decision, err := c.Check(context.Background(), "t1", "openai", "fast", 0.0001)
	require.NoError(t, err)
	assert.Equal(t, Reject, decision)
}

func TestController_WarnsOnceThenStopsWarning(t *testing.T) {
	l := newTestLedger(t)
	c := New(config.BudgetConfig{DailySpendLimitUSD: 10, WarnRatio: 0.5}, l, zap.NewNop(), nil)

	d1, err := c.Check(context.Background(), "t1", "openai", "fast", 6.0)
	require.NoError(t, err)
	assert.Equal(t, Warn, d1)

	d2, err := c.Check(context.Background(), "t2", "openai", "fast", 6.0)
	require.NoError(t, err)
	assert.Equal(t, Allow, d2)
}

func TestController_StrictModeWritesSyncHold(t *testing.T) {
	l := newTestLedger(t)
	c := New(config.BudgetConfig{DailySpendLimitUSD: 10, WarnRatio: 0.9, Strict: true}, l, zap.NewNop(), nil)

	decision, err := c.Check(context.Background(), "t1", "openai", "fast", 1.0)
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)

	spend, err := l.SpendToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, spend.OutstandingHolds)
}

func TestController_CommitSupersedesHold(t *testing.T) {
	l := newTestLedger(t)
	c := New(config.BudgetConfig{DailySpendLimitUSD: 10, WarnRatio: 0.9, Strict: true}, l, zap.NewNop(), nil)

	_, err := c.Check(context.Background(), "t1", "openai", "fast", 2.0)
	require.NoError(t, err)
	require.NoError(t, c.Commit(context.Background(), "t1", "openai", "fast", 1.5, types.TokenUsage{}, "{}", "{}", types.StatusOK))

	assert.Eventually(t, func() bool {
		spend, err := l.SpendToday(context.Background())
		return err == nil && spend.OutstandingHolds == 0 && spend.TotalUSD >= 1.5
	}, time.Second, 10*time.Millisecond)
}
