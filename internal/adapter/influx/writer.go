package influx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/config"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	client "github.com/influxdata/influxdb1-client/v2"
)

// precision of every written point.
const precision = "u"

// Writer implements pipeline.BatchLoader for an InfluxDB 1.x database.
type Writer struct {
	client    client.Client
	database  string
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Writer from the INFLUXDB_* settings. It does not
// contact the server.
func NewWriter(cfg *config.Config, logger *slog.Logger) (*Writer, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.InfluxURL,
		Username: cfg.InfluxUsername,
		Password: cfg.InfluxPassword,
		Timeout:  cfg.SinkWriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create influxdb client: %w", err)
	}
	return &Writer{
		client:    c,
		database:  cfg.InfluxDatabase,
		batchSize: cfg.InfluxBatchSize,
		logger:    logger,
	}, nil
}

// EnsureDatabase creates the database if it does not exist.
func (w *Writer) EnsureDatabase(ctx context.Context) error {
	return w.exec(ctx, "CREATE DATABASE "+quoteIdent(w.database))
}

// Reset drops and recreates the database.
func (w *Writer) Reset(ctx context.Context) error {
	w.logger.Warn("dropping influxdb database", "database", w.database)
	if err := w.exec(ctx, "DROP DATABASE "+quoteIdent(w.database)); err != nil {
		return err
	}
	return w.EnsureDatabase(ctx)
}

// LoadBatch writes points in chunks of the configured batch size. A failed
// chunk aborts the batch; earlier chunks stay written and are overwritten
// on retry since InfluxDB deduplicates identical series and timestamps.
func (w *Writer) LoadBatch(ctx context.Context, points []domain.Point) error {
	for start := 0; start < len(points); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+w.batchSize, len(points))

		bp, err := w.batch(points[start:end])
		if err != nil {
			return err
		}
		if err := w.client.Write(bp); err != nil {
			return fmt.Errorf("write %d points to %s: %w", end-start, w.database, err)
		}
	}
	w.logger.Debug("influxdb batch written", "points", len(points), "database", w.database)
	return nil
}

// Ping checks that the server is reachable.
func (w *Writer) Ping(timeout time.Duration) error {
	if _, _, err := w.client.Ping(timeout); err != nil {
		return fmt.Errorf("ping influxdb: %w", err)
	}
	return nil
}

// Close releases the underlying HTTP client.
func (w *Writer) Close() error {
	return w.client.Close()
}

func (w *Writer) batch(points []domain.Point) (client.BatchPoints, error) {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  w.database,
		Precision: precision,
	})
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	for _, p := range points {
		pt, err := client.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time)
		if err != nil {
			return nil, fmt.Errorf("build point at %s: %w", p.Timestamp(), err)
		}
		bp.AddPoint(pt)
	}
	return bp, nil
}

func (w *Writer) exec(ctx context.Context, statement string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := w.client.Query(client.NewQuery(statement, "", ""))
	if err != nil {
		return fmt.Errorf("%s: %w", statement, err)
	}
	if err := resp.Error(); err != nil {
		return fmt.Errorf("%s: %w", statement, err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}
