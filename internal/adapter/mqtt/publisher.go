// Package mqtt publishes entry records to an MQTT broker, one message per
// entry, on topics partitioned by band and mode.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/config"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// client is the subset of paho.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Disconnect(quiesce uint)
}

// Publisher sends entry records over MQTT.
// It implements pipeline.BatchLoader.
type Publisher struct {
	client client
	prefix string
	logger *slog.Logger
}

// NewPublisher connects to the configured broker. The client reconnects on
// its own after the initial connection succeeds.
func NewPublisher(cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.MQTTBroker, err)
	}
	return newPublisher(c, cfg.MQTTTopicPrefix, logger), nil
}

func newPublisher(c client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{client: c, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}
}

// LoadBatch publishes each point at QoS 1 and waits for every
// acknowledgement or for ctx to end.
func (p *Publisher) LoadBatch(ctx context.Context, points []domain.Point) error {
	tokens := make([]paho.Token, 0, len(points))
	for i := range points {
		payload, err := json.Marshal(points[i].Record())
		if err != nil {
			return fmt.Errorf("serialize entry: %w", err)
		}
		tokens = append(tokens, p.client.Publish(Topic(p.prefix, points[i]), qos, false, payload))
	}

	var errs []error
	for _, token := range tokens {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return fmt.Errorf("publish %d entries: %w", len(points), ctx.Err())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish %d of %d entries failed: %w", len(errs), len(points), errors.Join(errs...))
	}
	p.logger.Debug("published entries", "count", len(points))
	return nil
}

// Close disconnects after in-flight work has had a moment to complete.
func (p *Publisher) Close() error {
	p.client.Disconnect(quiesceMillis)
	return nil
}

// Topic returns <prefix>/<band>/<mode> for a point. Points outside every
// band are published under "unknown".
func Topic(prefix string, p domain.Point) string {
	b := p.Tags["band"]
	if b == "" {
		b = "unknown"
	}
	return prefix + "/" + b + "/" + p.Tags["mode"]
}
