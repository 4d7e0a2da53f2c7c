package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	token        func(topic string) paho.Token
	disconnected uint
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token(topic)
	}
	return completedToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = quiesce }

func point(bandName, mode, message string) domain.Point {
	tags := map[string]string{"mode": mode, "receiver_callsign": "SWL"}
	if bandName != "" {
		tags["band"] = bandName
	}
	return domain.Point{
		Measurement: domain.Measurement,
		Time:        time.Date(2023, 10, 6, 22, 43, 30, 600_000_000, time.UTC),
		Tags:        tags,
		Fields:      map[string]any{"message": message},
	}
}

// --- tests ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "wsjtx/entry/20m/FT8", Topic("wsjtx/entry", point("20m", "FT8", "")))
	assert.Equal(t, "wsjtx/entry/unknown/WSPR", Topic("wsjtx/entry", point("", "WSPR", "")))
}

func TestPublisher_LoadBatch(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "wsjtx/entry/", slog.Default())

	points := []domain.Point{point("20m", "FT8", "CQ SV5AZP KM46"), point("40m", "FT4", "CQ HA7EC JN97")}
	require.NoError(t, p.LoadBatch(context.Background(), points))

	require.Len(t, fc.messages, 2)
	assert.Equal(t, "wsjtx/entry/20m/FT8", fc.messages[0].topic)
	assert.Equal(t, "wsjtx/entry/40m/FT4", fc.messages[1].topic)
	assert.Equal(t, byte(1), fc.messages[0].qos)
	assert.False(t, fc.messages[0].retained)

	var rec domain.Record
	require.NoError(t, jsoniter.Unmarshal(fc.messages[0].payload, &rec))
	assert.Equal(t, "2023-10-06T22:43:30.600000Z", rec.Time)
	assert.Equal(t, "CQ SV5AZP KM46", rec.Fields["message"])
	assert.Equal(t, points[0].Fingerprint(), rec.Fingerprint)
}

func TestPublisher_LoadBatch_JoinsFailures(t *testing.T) {
	fc := &fakeClient{token: func(topic string) paho.Token {
		if topic == "wsjtx/entry/40m/FT4" {
			return completedToken(errors.New("not connected"))
		}
		return completedToken(nil)
	}}
	p := newPublisher(fc, "wsjtx/entry", slog.Default())

	err := p.LoadBatch(context.Background(), []domain.Point{point("20m", "FT8", "a"), point("40m", "FT4", "b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, err.Error(), "not connected")
}

func TestPublisher_LoadBatch_ContextDeadline(t *testing.T) {
	fc := &fakeClient{token: func(string) paho.Token {
		return &fakeToken{done: make(chan struct{})}
	}}
	p := newPublisher(fc, "wsjtx/entry", slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.LoadBatch(ctx, []domain.Point{point("20m", "FT8", "a")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublisher_Close(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "wsjtx/entry", slog.Default())

	require.NoError(t, p.Close())
	assert.Equal(t, uint(250), fc.disconnected)
}
