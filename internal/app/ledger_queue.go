package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/correlation"
)

const ledgerPassTimeout = 30 * time.Second

type ledgerJob struct {
	live          []domain.LiveStream
	scope         []string
	correlationID string
}

// LedgerQueue decouples ledger writes from the read paths that observe live
// channels. One goroutine drains the queue, so passes never interleave.
type LedgerQueue struct {
	ledger  *SessionLedger
	cache   domain.StatsCache
	metrics *metrics.LedgerMetrics

	mu     sync.RWMutex
	closed bool
	jobs   chan ledgerJob
	done   chan struct{}
}

// NewLedgerQueue buffers up to size snapshots. cache and m may be nil.
func NewLedgerQueue(ledger *SessionLedger, cache domain.StatsCache, size int, m *metrics.LedgerMetrics) *LedgerQueue {
	return &LedgerQueue{
		ledger:  ledger,
		cache:   cache,
		metrics: m,
		jobs:    make(chan ledgerJob, size),
		done:    make(chan struct{}),
	}
}

// Enqueue hands a snapshot to the consumer without blocking. It reports
// false when the snapshot was dropped because the queue is full or closed.
func (q *LedgerQueue) Enqueue(ctx context.Context, live []domain.LiveStream, scope []string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	corrID, _ := correlation.ID(ctx)
	job := ledgerJob{live: slices.Clone(live), scope: slices.Clone(scope), correlationID: corrID}

	select {
	case q.jobs <- job:
		return true
	default:
		slog.WarnContext(ctx, "Ledger queue full, dropping live snapshot", "streams", len(live))
		if q.metrics != nil {
			q.metrics.QueueDropped.Inc()
		}
		return false
	}
}

// Run consumes snapshots until the queue is closed and drained.
func (q *LedgerQueue) Run() {
	defer close(q.done)
	for job := range q.jobs {
		q.process(job)
	}
}

// Shutdown stops accepting snapshots and waits for the queued ones, or for
// ctx, whichever comes first.
func (q *LedgerQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ledger queue drain: %w", ctx.Err())
	}
}

func (q *LedgerQueue) process(job ledgerJob) {
	ctx := context.Background()
	if job.correlationID != "" {
		ctx = correlation.WithID(ctx, job.correlationID)
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerPassTimeout)
	defer cancel()

	result, err := q.ledger.Reconcile(ctx, job.live, job.scope)
	q.record(result)
	if err != nil {
		slog.ErrorContext(ctx, "Ledger write failed", "live", len(job.live), "error", err)
		if q.metrics != nil {
			q.metrics.WriteFailures.Inc()
		}
	}

	if len(result.Touched) == 0 || q.cache == nil {
		return
	}
	if err := q.cache.Invalidate(ctx, result.Touched...); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate stats cache", "channels", len(result.Touched), "error", err)
	}
}

func (q *LedgerQueue) record(result ReconcileResult) {
	if q.metrics == nil {
		return
	}
	q.metrics.SessionsOpened.Add(float64(result.Opened))
	q.metrics.SessionsClosed.Add(float64(result.Closed))
}
