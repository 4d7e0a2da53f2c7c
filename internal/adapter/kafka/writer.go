package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/config"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	jsoniter "github.com/json-iterator/go"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/vmihailenco/msgpack/v5"
)

// Supported message encodings.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer produces entry records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer   *kafkago.Writer
	encoding string
	logger   *slog.Logger
}

// NewWriter creates a Kafka producer for the configured entry topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, encoding: cfg.KafkaEncoding, logger: logger}
}

// LoadBatch publishes points in a single WriteMessages call. Messages are
// keyed by receiver callsign so one station's entries stay ordered within a
// partition.
func (w *Writer) LoadBatch(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(points))
	for i := range points {
		msg, err := serializeToMessage(points[i], w.encoding)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d entries: %w", len(msgs), err)
	}
	w.logger.Debug("published entries", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage encodes a point's record into a Kafka message.
func serializeToMessage(p domain.Point, encoding string) (kafkago.Message, error) {
	rec := p.Record()

	var (
		data []byte
		err  error
	)
	switch encoding {
	case EncodingMsgpack:
		data, err = msgpack.Marshal(rec)
	case EncodingJSON, "":
		data, err = json.Marshal(rec)
	default:
		return kafkago.Message{}, fmt.Errorf("unsupported encoding %q", encoding)
	}
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize entry: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(p.Tags["receiver_callsign"]),
		Value: data,
		Time:  p.Time,
		Headers: []kafkago.Header{
			{Key: "band", Value: []byte(p.Tags["band"])},
			{Key: "mode", Value: []byte(p.Tags["mode"])},
			{Key: "fingerprint", Value: []byte(rec.Fingerprint)},
			{Key: "content_type", Value: []byte(contentType(encoding))},
		},
	}, nil
}

func contentType(encoding string) string {
	if encoding == EncodingMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}
