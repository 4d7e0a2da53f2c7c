//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/band"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/config"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/geodesic"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/observability"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/vmihailenco/msgpack/v5"
)

const testTopic = "test-entries"

const allTxt = `231006_035130     3.573 Rx FT8    -20  0.6 2753 CQ DX F4BKV IN95
231006_041100     7.074 Rx FT8    -17  0.6 1646 RU3DMX <RO80MZ> R-02
231006_224330    14.074 Rx FT8    -20  0.6 1709 CQ SV5AZP KM46
231013_183000    14.072 Rx FT4    -19  0.9 4219 CQ HA7EC JN97
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func readMessage(ctx context.Context, t *testing.T, consumer *kafkago.Reader) kafkago.Message {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from entry topic")
	return msg
}

func headerMap(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func newEnricher(t *testing.T) *domain.Enricher {
	t.Helper()
	geo, err := geodesic.NewCachedCalculator(geodesic.WGS84, 64)
	require.NoError(t, err)
	return domain.NewEnricher(geo, band.Default(), discardLogger())
}

// TestKafkaWriter verifies a point round-trips through the broker in both
// encodings.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	entry := domain.Entry{
		Mode:             domain.ModeFT8,
		SNR:              -20,
		Frequency:        14_075_709,
		Message:          "CQ SV5AZP KM46",
		Time:             time.Date(2023, 10, 6, 22, 43, 30, 600_000_000, time.UTC),
		ReceiverGrid:     "MH09me",
		ReceiverCallsign: "SWL",
		SenderGrid:       "KM46",
		SenderCallsign:   "SV5AZP",
		CQ:               true,
	}
	point := newEnricher(t).Point(entry)
	consumer := newConsumer(t, broker)

	for _, encoding := range []string{kafka.EncodingJSON, kafka.EncodingMsgpack} {
		cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic, KafkaEncoding: encoding}
		writer := kafka.NewWriter(cfg, discardLogger())
		require.NoError(t, writer.LoadBatch(ctx, []domain.Point{point}))
		require.NoError(t, writer.Close())

		msg := readMessage(ctx, t, consumer)
		assert.Equal(t, "SWL", string(msg.Key))
		h := headerMap(msg)
		assert.Equal(t, "20m", h["band"])
		assert.Equal(t, "FT8", h["mode"])
		assert.Equal(t, point.Fingerprint(), h["fingerprint"])

		var rec domain.Record
		if encoding == kafka.EncodingMsgpack {
			require.NoError(t, msgpack.Unmarshal(msg.Value, &rec))
		} else {
			require.NoError(t, jsoniter.Unmarshal(msg.Value, &rec))
		}
		assert.Equal(t, "2023-10-06T22:43:30.600000Z", rec.Time)
		assert.Equal(t, point.Tags, rec.Tags)
		assert.Equal(t, "SV5AZP", rec.Fields["sender_callsign"])
	}
}

// TestReplayToKafka replays a decode log through the queue into Kafka and
// verifies every entry arrives once, in log order.
func TestReplayToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic, KafkaEncoding: kafka.EncodingJSON}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	sink := pipeline.NewFanoutLoader(pipeline.NamedLoader{Name: "kafka", Loader: writer})
	queue := pipeline.NewQueue(sink, newEnricher(t), clockwork.NewRealClock(), metrics, pipeline.QueueOptions{
		WriteTimeout: 30 * time.Second,
	})
	parser := domain.NewLogLineParser(domain.Receiver{Callsign: "SWL", Grid: "MH09me"}, nil)
	replayer := pipeline.NewReplayer(parser, queue, sink, 0, discardLogger(), metrics)

	stats, err := replayer.Replay(ctx, strings.NewReader(allTxt))
	require.NoError(t, err)
	require.Equal(t, 4, stats.Written)
	assert.Zero(t, queue.Len())

	consumer := newConsumer(t, broker)
	var messages []string
	for len(messages) < 4 {
		msg := readMessage(ctx, t, consumer)
		var rec domain.Record
		require.NoError(t, jsoniter.Unmarshal(msg.Value, &rec))
		messages = append(messages, rec.Fields["message"].(string))
	}
	assert.Equal(t, []string{
		"CQ DX F4BKV IN95",
		"RU3DMX <RO80MZ> R-02",
		"CQ SV5AZP KM46",
		"CQ HA7EC JN97",
	}, messages)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no further messages")
}
