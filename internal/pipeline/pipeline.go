package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/observability"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// EventSource blocks until the next WSJT-X telegram arrives.
type EventSource interface {
	Receive(ctx context.Context) (domain.Event, error)
}

// tuner is implemented by transformers that know whether the station has
// reported a dial frequency.
type tuner interface {
	Tuned() bool
}

// Options tunes when the pipeline flushes the queue.
type Options struct {
	// LiveGrace is how old an entry must be before a flush triggered by a
	// new entry writes it.
	LiveGrace time.Duration

	// DrainGrace is how old an entry must be before a periodic flush
	// writes it.
	DrainGrace time.Duration

	// DrainInterval is the period of the periodic flush.
	DrainInterval time.Duration

	// HighWaterMark is the buffer size that overrides the flush cooldown.
	HighWaterMark int
}

// Pipeline receives WSJT-X telegrams, turns decodes into entries, and
// flushes them to the sink. Receiving and flushing run concurrently so a
// slow sink never stalls the UDP socket.
type Pipeline struct {
	source      EventSource
	transformer Transformer
	queue       *Queue
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	ready       atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(source EventSource, t Transformer, q *Queue, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		source:      source,
		transformer: t,
		queue:       q,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once WSJT-X has reported the station's dial
// frequency or a replay has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no station status received yet")
	}
	return nil
}

// MarkReady flags the pipeline as ready, e.g. after a replay.
func (p *Pipeline) MarkReady() {
	p.ready.Store(true)
}

// Run receives and flushes until the context is cancelled, then makes a
// final attempt to write everything still buffered.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"live_grace", p.opts.LiveGrace,
		"drain_grace", p.opts.DrainGrace,
		"drain_interval", p.opts.DrainInterval,
		"high_water_mark", p.opts.HighWaterMark,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	nudge := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.receiveLoop(gctx, nudge)
		return nil
	})
	g.Go(func() error {
		p.flushLoop(gctx, nudge)
		return nil
	})
	err := g.Wait()

	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	p.finalFlush()
	return err
}

func (p *Pipeline) receiveLoop(ctx context.Context, nudge chan<- struct{}) {
	backoff := initialBackoff
	for {
		ev, err := p.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("receive failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff
		if ev == nil {
			continue
		}

		entry, ok, err := p.transformer.Transform(ctx, ev)
		if err != nil {
			p.logger.Warn("transform failed, skipping telegram", "error", err, "client", ev.ClientID())
			continue
		}
		p.checkTuned()
		if !ok {
			continue
		}

		p.queue.Enqueue(entry)
		p.logger.Debug("entry enqueued", "entry", entry)

		select {
		case nudge <- struct{}{}:
		default:
		}
	}
}

func (p *Pipeline) checkTuned() {
	if p.ready.Load() {
		return
	}
	if t, ok := p.transformer.(tuner); ok && t.Tuned() {
		p.ready.Store(true)
		p.logger.Info("station tuned, pipeline ready")
	}
}

func (p *Pipeline) flushLoop(ctx context.Context, nudge <-chan struct{}) {
	ticker := p.clock.NewTicker(p.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-nudge:
			p.flush(ctx, p.opts.LiveGrace)
		case <-ticker.Chan():
			p.flush(ctx, p.opts.DrainGrace)
		}
	}
}

func (p *Pipeline) flush(ctx context.Context, grace time.Duration) {
	n, err := p.queue.Flush(ctx, grace, p.opts.HighWaterMark)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("flush failed, entries kept for retry", "error", err, "pending", p.queue.Len())
		return
	}
	if n > 0 {
		p.logger.Info("entries written", "count", n, "pending", p.queue.Len())
	}
}

// finalFlush forces out every buffered entry with a context that outlives
// the cancelled run context.
func (p *Pipeline) finalFlush() {
	if p.queue.Len() == 0 {
		return
	}
	n, err := p.queue.Flush(context.Background(), 0, 0)
	if err != nil {
		p.logger.Error("final flush failed", "error", err, "lost", humanize.Comma(int64(p.queue.Len())))
		return
	}
	p.logger.Info("final flush complete", "count", n, "remaining", p.queue.Len())
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
