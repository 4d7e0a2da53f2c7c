// Command wsjtx-etl ingests WSJT-X decodes into InfluxDB, optionally
// replaying a historical ALL.TXT log first.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/http"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/mqtt"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/wsjtx"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/band"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/config"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/geodesic"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/observability"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
)

type flags struct {
	replay     bool
	replayFile string
	replayOnly bool
	bandplan   string
}

func parseFlags() flags {
	var f flags
	pflag.BoolVar(&f.replay, "replay", false, "replay the decode log before listening")
	pflag.StringVar(&f.replayFile, "replay-file", "ALL.TXT", "path of the WSJT-X decode log")
	pflag.BoolVar(&f.replayOnly, "replay-only", false, "exit after the replay")
	pflag.StringVar(&f.bandplan, "bandplan", "", "band plan CSV (overrides BANDPLAN_FILE)")
	pflag.Parse()
	if f.replayOnly {
		f.replay = true
	}
	return f
}

func main() {
	f := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if f.bandplan != "" {
		cfg.BandplanFile = f.bandplan
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, f, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, f flags, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	bands, err := loadBands(cfg.BandplanFile)
	if err != nil {
		return err
	}
	geo, err := geodesic.NewCachedCalculator(geodesic.WGS84, cfg.GeodesicCacheSize,
		geodesic.WithObserver(metrics.ObserveGeodesicCache))
	if err != nil {
		return err
	}
	enricher := domain.NewEnricher(geo, bands, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closers, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Error("sink close error", "error", err)
			}
		}
	}()

	queue := pipeline.NewQueue(sink, enricher, clock, metrics, pipeline.QueueOptions{
		Cooldown:     cfg.FlushCooldown,
		WriteTimeout: cfg.SinkWriteTimeout,
	})

	station := domain.Station{Callsign: cfg.ReceiverCallsign, Grid: cfg.ReceiverGrid}
	transformer := pipeline.NewLiveTransformer(station, domain.WSJTXGrammar{}, clock, logger, metrics)

	var listener *wsjtx.Listener
	if !f.replayOnly {
		if listener, err = wsjtx.Listen(cfg.WSJTXAddr, logger); err != nil {
			return err
		}
		defer listener.Close()
	}

	p := pipeline.New(listener, transformer, queue, clock, logger, metrics, pipeline.Options{
		LiveGrace:     cfg.LiveGrace,
		DrainGrace:    cfg.DrainGrace,
		DrainInterval: cfg.DrainInterval,
		HighWaterMark: cfg.FlushHighWaterMark,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer shutdownServer(srv, cfg.ShutdownTimeout, logger)

	if f.replay {
		receiver := domain.Receiver{Callsign: cfg.ReceiverCallsign, Grid: cfg.ReceiverGrid}
		parser := domain.NewLogLineParser(receiver, domain.NewMessageParser(domain.WSJTXGrammar{}))
		replayer := pipeline.NewReplayer(parser, queue, sink, cfg.LiveGrace, logger, metrics)
		if err := replayFile(ctx, replayer, f.replayFile); err != nil {
			if !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("replay interrupted, flushing entries read so far", "pending", queue.Len())
			if _, err := queue.Flush(context.Background(), 0, 0); err != nil {
				return fmt.Errorf("flush after interrupted replay: %w", err)
			}
			return nil
		}
		p.MarkReady()
	}
	if f.replayOnly {
		if n := queue.Len(); n > 0 {
			return fmt.Errorf("replay finished with %d entries unwritten", n)
		}
		return nil
	}

	logger.Info("listening for WSJT-X", "addr", listener.Addr().String(),
		"receiver_callsign", cfg.ReceiverCallsign, "receiver_grid", cfg.ReceiverGrid)
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func loadBands(path string) (*band.Table, error) {
	if path == "" {
		return band.Default(), nil
	}
	return band.Load(path)
}

// openSinks connects InfluxDB and any optional fan-out sinks. InfluxDB being
// unreachable at startup is not fatal: the queue holds entries until it
// accepts them.
func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.FanoutLoader, []io.Closer, error) {
	influxWriter, err := influx.NewWriter(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := influxWriter.Ping(cfg.SinkWriteTimeout); err != nil {
		logger.Warn("influxdb unreachable, entries will be buffered", "url", cfg.InfluxURL, "error", err)
	} else if err := influxWriter.EnsureDatabase(ctx); err != nil {
		logger.Warn("influxdb database not created", "database", cfg.InfluxDatabase, "error", err)
	}

	sinks := []pipeline.NamedLoader{{Name: "influxdb", Loader: influxWriter}}
	closers := []io.Closer{influxWriter}

	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, pipeline.NamedLoader{Name: "kafka", Loader: w})
		closers = append(closers, w)
		logger.Info("kafka fan-out enabled", "topic", cfg.KafkaTopic, "encoding", cfg.KafkaEncoding)
	}
	if cfg.MQTTEnabled() {
		pub, err := mqttadapter.NewPublisher(cfg, logger)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, err
		}
		sinks = append(sinks, pipeline.NamedLoader{Name: "mqtt", Loader: pub})
		closers = append(closers, pub)
		logger.Info("mqtt fan-out enabled", "broker", cfg.MQTTBroker, "prefix", cfg.MQTTTopicPrefix)
	}

	return pipeline.NewFanoutLoader(sinks...), closers, nil
}

func replayFile(ctx context.Context, r *pipeline.Replayer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	if _, err := r.Replay(ctx, file); err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	return nil
}

func shutdownServer(srv *httpadapter.Server, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}
