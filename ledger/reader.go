package ledger

import (
	"context"
	"time"

	"github.com/harrowgate/llmgate/types"
)

// Ledger is the public facade combining the store, writer, and read-path
// queries. The Orchestrator and Budget Controller depend on this type, not
// on Store/Writer directly.
type Ledger struct {
	store  *Store
	writer *Writer
}

func New(store *Store, writer *Writer) *Ledger {
	return &Ledger{store: store, writer: writer}
}

// Append enqueues e for asynchronous persistence. When e.Sync is true the
// call blocks until the writer durably commits it (strict-budget mode's
// synchronization point, spec §4.4).
func (l *Ledger) Append(ctx context.Context, e types.LedgerEvent) error {
	if e.Sync {
		e.Done = make(chan error, 1)
		l.writer.Enqueue(e)
		select {
		case err := <-e.Done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.writer.Enqueue(e)
	return nil
}

func (l *Ledger) Degraded() bool { return l.writer.Degraded() }

func (l *Ledger) Shutdown(ctx context.Context) { l.writer.Shutdown(ctx) }

// SpendToday implements spec §4.3's daily-spend query: sum of
// cost_actual_usd for commit|adjust plus cost_est_usd for precheck_hold
// rows with no matching terminal event, over [local-midnight, now).
func (l *Ledger) SpendToday(ctx context.Context) (types.DailySpend, error) {
	midnight := localMidnight(time.Now())
	return l.spendSince(ctx, midnight)
}

func (l *Ledger) spendSince(ctx context.Context, since time.Time) (types.DailySpend, error) {
	db := l.store.db.WithContext(ctx)

	var committedTotal float64
	if err := db.Raw(`
		SELECT COALESCE(SUM(cost_actual_usd), 0) FROM events
		WHERE event_type IN ('commit', 'adjust') AND timestamp >= ?
	`, float64(since.Unix())).Scan(&committedTotal).Error; err != nil {
		return types.DailySpend{}, err
	}

	var outstanding []struct {
		TraceID    string
		CostEstUSD float64
	}
	if err := db.Raw(`
		SELECT h.trace_id AS trace_id, COALESCE(h.cost_est_usd, 0) AS cost_est_usd
		FROM events h
		WHERE h.event_type = 'precheck_hold' AND h.timestamp >= ?
		  AND NOT EXISTS (
		      SELECT 1 FROM events t
		      WHERE t.trace_id = h.trace_id AND t.event_type IN ('commit', 'cancel')
		  )
	`, float64(since.Unix())).Scan(&outstanding).Error; err != nil {
		return types.DailySpend{}, err
	}

	var holdTotal float64
	for _, h := range outstanding {
		holdTotal += h.CostEstUSD
	}

	return types.DailySpend{
		TotalUSD:         committedTotal + holdTotal,
		OutstandingHolds: len(outstanding),
	}, nil
}

// CountInWindow counts events of eventTypes for (provider, model) with
// timestamp >= since (unix seconds). The rate limiter does not call it; its
// rpd window is counted from its own Ring.
func (l *Ledger) CountInWindow(ctx context.Context, provider, model string, since float64, eventTypes ...types.LedgerEventType) (int64, error) {
	var count int64
	q := l.store.db.WithContext(ctx).Table("events").
		Where("provider = ? AND model = ? AND timestamp >= ?", provider, model, since)
	if len(eventTypes) > 0 {
		q = q.Where("event_type IN ?", eventTypesToStrings(eventTypes))
	}
	err := q.Count(&count).Error
	return count, err
}

func eventTypesToStrings(types_ []types.LedgerEventType) []string {
	out := make([]string, len(types_))
	for i, t := range types_ {
		out[i] = string(t)
	}
	return out
}

func localMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
