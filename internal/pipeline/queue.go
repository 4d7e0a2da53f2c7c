package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// BatchLoader writes multiple points to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, points []domain.Point) error
}

// Resetter clears a sink's prior contents before a replay.
type Resetter interface {
	Reset(ctx context.Context) error
}

// QueueOptions tunes the flush behavior of a Queue.
type QueueOptions struct {
	// Cooldown is the minimum time between two flush attempts unless the
	// buffer has reached the high water mark.
	Cooldown time.Duration

	// WriteTimeout bounds each sink write.
	WriteTimeout time.Duration
}

type pendingEntry struct {
	seq   uint64
	entry domain.Entry
}

// Queue buffers entries until they are old enough to be written, then
// delivers them to the sink in time order. Entries leave the buffer only
// after a successful write.
type Queue struct {
	loader  BatchLoader
	points  domain.PointBuilder
	clock   clockwork.Clock
	metrics *observability.Metrics
	opts    QueueOptions

	mu          sync.Mutex
	pending     []pendingEntry
	nextSeq     uint64
	lastAttempt time.Time

	flushMu sync.Mutex
}

// NewQueue creates an empty Queue delivering to loader.
func NewQueue(loader BatchLoader, points domain.PointBuilder, clock clockwork.Clock, metrics *observability.Metrics, opts QueueOptions) *Queue {
	return &Queue{
		loader:  loader,
		points:  points,
		clock:   clock,
		metrics: metrics,
		opts:    opts,
	}
}

// Enqueue adds e to the buffer.
func (q *Queue) Enqueue(e domain.Entry) {
	q.mu.Lock()
	q.nextSeq++
	q.pending = append(q.pending, pendingEntry{seq: q.nextSeq, entry: e})
	n := len(q.pending)
	q.mu.Unlock()

	q.metrics.EntriesEnqueued.Inc()
	q.metrics.EntriesPending.Set(float64(n))
}

// Len returns the number of buffered entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush writes every buffered entry older than grace, oldest first, in a
// single batch. It returns the number of entries written.
//
// A flush within the cooldown of the previous attempt is skipped unless the
// buffer holds at least highWaterMark entries. A highWaterMark of zero
// always flushes. On a sink error the buffer is left untouched.
func (q *Queue) Flush(ctx context.Context, grace time.Duration, highWaterMark int) (int, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	now := q.clock.Now()

	q.mu.Lock()
	if highWaterMark > 0 && len(q.pending) < highWaterMark && !q.lastAttempt.IsZero() && now.Sub(q.lastAttempt) < q.opts.Cooldown {
		q.mu.Unlock()
		return 0, nil
	}
	q.lastAttempt = now

	cutoff := now.Add(-grace)
	selected := make([]pendingEntry, 0, len(q.pending))
	for _, p := range q.pending {
		if p.entry.Time.Before(cutoff) {
			selected = append(selected, p)
		}
	}
	q.mu.Unlock()

	if len(selected) == 0 {
		return 0, nil
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i].entry, selected[j].entry
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Frequency < b.Frequency
	})

	batch := make([]domain.Point, len(selected))
	for i, p := range selected {
		batch[i] = q.points.Point(p.entry)
	}

	writeCtx, cancel := ctx, context.CancelFunc(func() {})
	if q.opts.WriteTimeout > 0 {
		writeCtx, cancel = context.WithTimeout(ctx, q.opts.WriteTimeout)
	}
	start := q.clock.Now()
	err := q.loader.LoadBatch(writeCtx, batch)
	cancel()
	q.metrics.FlushDuration.Observe(q.clock.Since(start).Seconds())

	if err != nil {
		q.metrics.FlushFailures.Inc()
		return 0, fmt.Errorf("write %d entries: %w", len(batch), err)
	}

	q.remove(selected)
	q.metrics.EntriesWritten.Add(float64(len(batch)))
	q.metrics.BatchSize.Observe(float64(len(batch)))
	return len(batch), nil
}

// remove drops exactly the written entries; anything enqueued during the
// write stays buffered.
func (q *Queue) remove(written []pendingEntry) {
	done := make(map[uint64]struct{}, len(written))
	for _, p := range written {
		done[p.seq] = struct{}{}
	}

	q.mu.Lock()
	kept := q.pending[:0]
	for _, p := range q.pending {
		if _, ok := done[p.seq]; !ok {
			kept = append(kept, p)
		}
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	n := len(kept)
	q.mu.Unlock()

	q.metrics.EntriesPending.Set(float64(n))
}
