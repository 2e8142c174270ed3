package ledger

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/types"
)

const (
	batchSize     = 100
	batchInterval = 200 * time.Millisecond
	maxBatchRetries = 3
	drainDeadline   = 5 * time.Second
	queueCapacity   = 10000
)

// Writer is the single-writer asynchronous ingest worker of spec §4.3: a
// bounded queue drained by exactly one goroutine, batching into
// BEGIN…COMMIT transactions on a size-or-time trigger, with retry and a
// process-wide degraded flag on persistent failure.
type Writer struct {
	store   *Store
	logger  *zap.Logger
	metrics *metrics.Collector

	queue chan types.LedgerEvent
	done  chan struct{}
	wg    sync.WaitGroup

	degraded atomic.Bool
}

func NewWriter(store *Store, logger *zap.Logger, m *metrics.Collector) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:   store,
		logger:  logger,
		metrics: m,
		queue:   make(chan types.LedgerEvent, queueCapacity),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Degraded reports whether the writer has given up on persistent failure.
func (w *Writer) Degraded() bool { return w.degraded.Load() }

// Enqueue submits an event for asynchronous persistence. Enqueue never
// blocks: under overflow it drops the oldest non-terminal event already
// queued (drop-oldest-non-terminal, spec §4.3/§5); commit/cancel events
// are never dropped — if the queue is full, the caller writes synchronously
// instead (spec §5's backpressure policy).
func (w *Writer) Enqueue(e types.LedgerEvent) {
	select {
	case w.queue <- e:
		if w.metrics != nil {
			w.metrics.LedgerQueueDepth.Set(float64(len(w.queue)))
		}
		return
	default:
	}

	if isTerminal(e.EventType) {
		// Queue full and this is a commit/cancel: write synchronously so
		// it is never silently dropped.
		w.writeSync(context.Background(), []types.LedgerEvent{e})
		return
	}

	// Best-effort: try to make room by dropping one non-terminal event. A
	// commit/cancel taken from the head is written synchronously instead.
	select {
	case dropped := <-w.queue:
		if isTerminal(dropped.EventType) {
			w.writeSync(context.Background(), []types.LedgerEvent{dropped})
			break
		}
		if w.metrics != nil {
			w.metrics.LedgerDroppedTotal.Inc()
		}
		w.logger.Warn("ledger queue overflow, dropped event", zap.String("event_id", dropped.EventID))
	default:
	}
	select {
	case w.queue <- e:
	default:
		if w.metrics != nil {
			w.metrics.LedgerDroppedTotal.Inc()
		}
		w.logger.Warn("ledger queue overflow, dropped event", zap.String("event_id", e.EventID))
	}
}

func isTerminal(t types.LedgerEventType) bool {
	return t == types.EventCommit || t == types.EventCancel
}

func (w *Writer) run() {
	defer w.wg.Done()

	var batch []types.LedgerEvent
	timer := time.NewTimer(batchInterval)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.writeSync(context.Background(), batch)
		batch = nil
	}

	for {
		select {
		case e, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			if len(batch) == 0 {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(batchInterval)
			}
			batch = append(batch, e)
			if w.metrics != nil {
				w.metrics.LedgerQueueDepth.Set(float64(len(w.queue)))
			}
			if len(batch) >= batchSize {
				flush()
			}

		case <-timer.C:
			flush()
			timer.Reset(batchInterval)

		case <-w.done:
			// Drain whatever remains, bounded by drainDeadline.
			deadline := time.After(drainDeadline)
		drainLoop:
			for {
				select {
				case e, ok := <-w.queue:
					if !ok {
						break drainLoop
					}
					batch = append(batch, e)
				case <-deadline:
					break drainLoop
				default:
					break drainLoop
				}
			}
			flush()
			return
		}
	}
}

// writeSync commits one batch, retrying up to maxBatchRetries times with
// exponential backoff, and signals every event's Done channel.
func (w *Writer) writeSync(ctx context.Context, batch []types.LedgerEvent) {
	start := time.Now()
	rows := make([]eventRow, len(batch))
	for i, e := range batch {
		rows[i] = toRow(e)
	}

	var err error
	for attempt := 0; attempt <= maxBatchRetries; attempt++ {
		err = w.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&rows).Error
		})
		if err == nil || attempt == maxBatchRetries {
			break
		}
		w.logger.Warn("ledger batch write failed, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
		time.Sleep(backoff)
	}

	if w.metrics != nil {
		w.metrics.LedgerBatchLatency.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		w.logger.Error("ledger batch write failed persistently, dropping batch",
			zap.Int("size", len(batch)), zap.Error(err))
		w.degraded.Store(true)
		if w.metrics != nil {
			w.metrics.LedgerDegraded.Set(1)
			w.metrics.LedgerDroppedTotal.Add(float64(len(batch)))
		}
	}

	for _, e := range batch {
		if e.Sync && e.Done != nil {
			e.Done <- err
			close(e.Done)
		}
	}
}

// Shutdown drains the queue with a bounded deadline; any events still
// unflushed past the deadline are flushed synchronously by the caller
// (spec §4.3).
func (w *Writer) Shutdown(ctx context.Context) {
	close(w.done)

	waitCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(drainDeadline):
	case <-ctx.Done():
	}

	// Flush anything still sitting in the queue synchronously.
	var remaining []types.LedgerEvent
	for {
		select {
		case e := <-w.queue:
			remaining = append(remaining, e)
			continue
		default:
		}
		break
	}
	if len(remaining) > 0 {
		w.writeSync(context.Background(), remaining)
	}
}
