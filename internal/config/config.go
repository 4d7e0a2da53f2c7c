package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/maidenhead"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Receiving station, used for replayed log entries and as the live
	// station until WSJT-X reports its own.
	ReceiverCallsign string
	ReceiverGrid     string

	WSJTXAddr       string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	InfluxURL        string
	InfluxDatabase   string
	InfluxUsername   string
	InfluxPassword   string
	InfluxBatchSize  int
	SinkWriteTimeout time.Duration

	// Ingestion queue.
	FlushCooldown      time.Duration
	FlushHighWaterMark int
	LiveGrace          time.Duration
	DrainGrace         time.Duration
	DrainInterval      time.Duration

	GeodesicCacheSize int
	BandplanFile      string

	// Optional Kafka fan-out; disabled when no brokers are set.
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaEncoding string

	// Optional MQTT fan-out; disabled when no broker is set.
	MQTTBroker      string
	MQTTTopicPrefix string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
}

// KafkaEnabled reports whether entries are also published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// MQTTEnabled reports whether entries are also published over MQTT.
func (c *Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ReceiverCallsign: sharedcfg.EnvOrDefault("RECEIVER_CALLSIGN", ""),
		ReceiverGrid:     sharedcfg.EnvOrDefault("RECEIVER_GRID", ""),
		WSJTXAddr:        sharedcfg.EnvOrDefault("WSJTX_UDP_ADDR", ":2237"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,

		InfluxURL:      sharedcfg.EnvOrDefault("INFLUXDB_URL", "http://localhost:8086"),
		InfluxDatabase: sharedcfg.EnvOrDefault("INFLUXDB_DATABASE", "wsjtx"),
		InfluxUsername: sharedcfg.EnvOrDefault("INFLUXDB_USERNAME", ""),
		InfluxPassword: sharedcfg.EnvOrDefault("INFLUXDB_PASSWORD", ""),

		BandplanFile: sharedcfg.EnvOrDefault("BANDPLAN_FILE", ""),

		KafkaTopic:    sharedcfg.EnvOrDefault("KAFKA_TOPIC", "wsjtx-entries"),
		KafkaEncoding: strings.ToLower(sharedcfg.EnvOrDefault("KAFKA_ENCODING", "json")),

		MQTTBroker:      sharedcfg.EnvOrDefault("MQTT_BROKER", ""),
		MQTTTopicPrefix: strings.TrimSuffix(sharedcfg.EnvOrDefault("MQTT_TOPIC_PREFIX", "wsjtx/entry"), "/"),
		MQTTClientID:    sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "wsjtx-influx-etl"),
		MQTTUsername:    sharedcfg.EnvOrDefault("MQTT_USERNAME", ""),
		MQTTPassword:    sharedcfg.EnvOrDefault("MQTT_PASSWORD", ""),
	}

	if brokers := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); strings.TrimSpace(brokers) != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	durations := []struct {
		key  string
		def  string
		dst  *time.Duration
		zero bool
	}{
		{"SINK_WRITE_TIMEOUT", "10s", &cfg.SinkWriteTimeout, false},
		{"FLUSH_COOLDOWN", "1s", &cfg.FlushCooldown, true},
		{"LIVE_GRACE", "5s", &cfg.LiveGrace, true},
		{"DRAIN_GRACE", "15s", &cfg.DrainGrace, true},
		{"DRAIN_INTERVAL", "5s", &cfg.DrainInterval, false},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def, d.zero); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dst  *int
		zero bool
	}{
		{"INFLUXDB_BATCH_SIZE", 100, &cfg.InfluxBatchSize, false},
		{"FLUSH_HIGH_WATER_MARK", 1000, &cfg.FlushHighWaterMark, true},
		{"GEODESIC_CACHE_SIZE", 512, &cfg.GeodesicCacheSize, false},
	}
	for _, n := range ints {
		if *n.dst, err = parseInt(n.key, n.def, n.zero); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReceiverGrid != "" && !maidenhead.Valid(c.ReceiverGrid) {
		return fmt.Errorf("invalid RECEIVER_GRID %q", c.ReceiverGrid)
	}
	if c.InfluxDatabase == "" {
		return errors.New("INFLUXDB_DATABASE is required")
	}
	if u, err := url.Parse(c.InfluxURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid INFLUXDB_URL %q", c.InfluxURL)
	}
	switch c.KafkaEncoding {
	case "json", "msgpack":
	default:
		return fmt.Errorf("invalid KAFKA_ENCODING %q: want json or msgpack", c.KafkaEncoding)
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.MQTTEnabled() && c.MQTTTopicPrefix == "" {
		return errors.New("MQTT_TOPIC_PREFIX is required when MQTT_BROKER is set")
	}
	return nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	raw := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func parseInt(key string, def int, allowZero bool) (int, error) {
	raw := sharedcfg.EnvOrDefault(key, strconv.Itoa(def))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}
