package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func testPoint() domain.Point {
	return domain.Point{
		Measurement: domain.Measurement,
		Time:        time.Date(2023, 10, 6, 22, 43, 30, 600_000_000, time.UTC),
		Tags: map[string]string{
			"band":              "20m",
			"mode":              "FT8",
			"receiver_callsign": "SWL",
			"cq":                "true",
		},
		Fields: map[string]any{
			"message":   "CQ SV5AZP KM46",
			"frequency": int64(14_075_709),
			"snr":       -20,
		},
	}
}

func headers(t *testing.T, p domain.Point, encoding string) map[string]string {
	t.Helper()
	msg, err := serializeToMessage(p, encoding)
	require.NoError(t, err)
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestSerializeToMessage_JSON(t *testing.T) {
	p := testPoint()

	msg, err := serializeToMessage(p, EncodingJSON)
	require.NoError(t, err)

	assert.Equal(t, []byte("SWL"), msg.Key)
	assert.Equal(t, p.Time, msg.Time)

	var rec map[string]any
	require.NoError(t, jsoniter.Unmarshal(msg.Value, &rec))
	assert.Equal(t, "entry", rec["measurement"])
	assert.Equal(t, "2023-10-06T22:43:30.600000Z", rec["time"])
	assert.Equal(t, p.Fingerprint(), rec["fingerprint"])
	assert.Contains(t, string(msg.Value), `"frequency":14075709`)
	assert.Contains(t, string(msg.Value), `"band":"20m"`)
}

func TestSerializeToMessage_Msgpack(t *testing.T) {
	p := testPoint()

	msg, err := serializeToMessage(p, EncodingMsgpack)
	require.NoError(t, err)

	var rec domain.Record
	require.NoError(t, msgpack.Unmarshal(msg.Value, &rec))
	assert.Equal(t, domain.Measurement, rec.Measurement)
	assert.Equal(t, p.Timestamp(), rec.Time)
	assert.Equal(t, p.Tags, rec.Tags)
	assert.Equal(t, "CQ SV5AZP KM46", rec.Fields["message"])
}

func TestSerializeToMessage_Headers(t *testing.T) {
	p := testPoint()

	h := headers(t, p, EncodingJSON)
	assert.Equal(t, "20m", h["band"])
	assert.Equal(t, "FT8", h["mode"])
	assert.Equal(t, p.Fingerprint(), h["fingerprint"])
	assert.Equal(t, "application/json", h["content_type"])

	assert.Equal(t, "application/msgpack", headers(t, p, EncodingMsgpack)["content_type"])
}

func TestSerializeToMessage_OutOfBand(t *testing.T) {
	p := testPoint()
	delete(p.Tags, "band")

	assert.Empty(t, headers(t, p, EncodingJSON)["band"])
}

func TestSerializeToMessage_UnsupportedEncoding(t *testing.T) {
	_, err := serializeToMessage(testPoint(), "avro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "avro")
}
