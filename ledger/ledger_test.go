package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/types"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(DefaultStoreConfig(path), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.NewCollector("llmgate_test_" + t.Name())
	writer := NewWriter(store, zap.NewNop(), m)
	l := New(store, writer)
	t.Cleanup(func() { l.Shutdown(context.Background()) })
	return l
}

func cost(v float64) *float64 { return &v }

func TestLedger_AppendAsyncThenSpendToday(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	evt := types.LedgerEvent{
		EventID:       "e1",
		TraceID:       "t1",
		EventType:     types.EventCommit,
		Provider:      "openai",
		Model:         "gpt",
		CostActualUSD: cost(1.50),
		Status:        types.StatusOK,
		Timestamp:     nowSec(),
	}
	require.NoError(t, l.Append(ctx, evt))

	assert.Eventually(t, func() bool {
		spend, err := l.SpendToday(ctx)
		return err == nil && spend.TotalUSD >= 1.50
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLedger_SyncAppendBlocksUntilDurable(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	evt := types.LedgerEvent{
		EventID:    "e2-hold",
		TraceID:    "t2",
		EventType:  types.EventPrecheckHold,
		Provider:   "openai",
		Model:      "gpt",
		CostEstUSD: cost(2.0),
		Status:     types.StatusOK,
		Timestamp:  nowSec(),
		Sync:       true,
	}
	require.NoError(t, l.Append(ctx, evt))

	spend, err := l.SpendToday(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, spend.TotalUSD, 2.0)
}

func TestLedger_HoldSupersededByCommit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	hold := types.LedgerEvent{
		EventID:    "e3-hold",
		TraceID:    "t3",
		EventType:  types.EventPrecheckHold,
		Provider:   "openai",
		Model:      "gpt",
		CostEstUSD: cost(5.0),
		Status:     types.StatusOK,
		Timestamp:  nowSec(),
		Sync:       true,
	}
	require.NoError(t, l.Append(ctx, hold))

	commit := types.LedgerEvent{
		EventID:       "e3-commit",
		TraceID:       "t3",
		EventType:     types.EventCommit,
		Provider:      "openai",
		Model:         "gpt",
		CostActualUSD: cost(1.0),
		Status:        types.StatusOK,
		Timestamp:     nowSec(),
		Sync:          true,
	}
	require.NoError(t, l.Append(ctx, commit))

	spend, err := l.SpendToday(ctx)
	require.NoError(t, err)
	// the hold is superseded by its terminal commit — only 1.0 counts.
	assert.InDelta(t, 1.0, spend.TotalUSD, 0.001)
}

func TestLedger_Report(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, types.LedgerEvent{
		EventID: "e4", TraceID: "t4", EventType: types.EventCommit,
		Provider: "openai", Model: "gpt", CostActualUSD: cost(3.0),
		Status: types.StatusOK, Timestamp: nowSec(), Sync: true,
	}))

	secret := []byte("test-signing-secret")
	token, err := l.Report(ctx, 1, secret)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := VerifyReport(token, secret)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, claims.Total, 3.0)
}

func TestLedger_ReportRejectsTamperedSignature(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	token, err := l.Report(ctx, 1, []byte("secret-a"))
	require.NoError(t, err)

	_, err = VerifyReport(token, []byte("secret-b"))
	assert.Error(t, err)
}

func nowSec() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
