package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/observability"
	"github.com/dustin/go-humanize"
)

// ReplayStats summarizes one replay.
type ReplayStats struct {
	Lines       int
	Entries     int
	Skipped     int
	Invalid     int
	UnknownMode int
	Written     int
}

// Replayer feeds a historical ALL.TXT log through the ingestion queue.
type Replayer struct {
	parser  *domain.LogLineParser
	queue   *Queue
	sink    Resetter
	grace   time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewReplayer creates a Replayer. sink is cleared before the log is read;
// pass nil to append to the existing data. grace is applied to the forced
// flush after every entry.
func NewReplayer(parser *domain.LogLineParser, queue *Queue, sink Resetter, grace time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Replayer {
	return &Replayer{
		parser:  parser,
		queue:   queue,
		sink:    sink,
		grace:   grace,
		logger:  logger,
		metrics: metrics,
	}
}

// Replay reads r line by line. Lines that fail to parse are logged and
// skipped. Flush failures are logged and the entries stay queued; only a
// failure to reset the sink or to read r aborts the replay.
func (r *Replayer) Replay(ctx context.Context, src io.Reader) (ReplayStats, error) {
	var stats ReplayStats

	if r.sink != nil {
		if err := r.sink.Reset(ctx); err != nil {
			return stats, fmt.Errorf("reset sink: %w", err)
		}
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := scanner.Text()

		entry, err := r.parser.Parse(line)
		switch {
		case errors.Is(err, domain.ErrUnknownMode):
			stats.UnknownMode++
			r.count("unknown_mode")
			r.logger.Warn("skipping line with unknown mode", "line_no", stats.Lines, "line", line, "error", err)
			continue
		case err != nil:
			stats.Invalid++
			r.count("invalid")
			r.logger.Warn("skipping invalid line", "line_no", stats.Lines, "line", line, "error", err)
			continue
		case entry == nil:
			stats.Skipped++
			r.count("skipped")
			continue
		}

		stats.Entries++
		r.count("parsed")
		r.queue.Enqueue(*entry)
		stats.Written += r.flush(ctx, r.grace)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read log: %w", err)
	}

	stats.Written += r.flush(ctx, 0)

	r.logger.Info("replay complete",
		"lines", humanize.Comma(int64(stats.Lines)),
		"entries", humanize.Comma(int64(stats.Entries)),
		"written", humanize.Comma(int64(stats.Written)),
		"skipped", humanize.Comma(int64(stats.Skipped)),
		"invalid", humanize.Comma(int64(stats.Invalid)),
		"unknown_mode", humanize.Comma(int64(stats.UnknownMode)),
		"pending", humanize.Comma(int64(r.queue.Len())),
	)
	return stats, nil
}

func (r *Replayer) flush(ctx context.Context, grace time.Duration) int {
	n, err := r.queue.Flush(ctx, grace, 0)
	if err != nil {
		r.logger.Error("replay flush failed, entries kept for retry", "error", err, "pending", r.queue.Len())
		return 0
	}
	return n
}

func (r *Replayer) count(outcome string) {
	r.metrics.ReplayLines.WithLabelValues(outcome).Inc()
}
