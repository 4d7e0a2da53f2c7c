package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayLog = `231006_035130     3.573 Rx FT8    -20  0.6 2753 CQ DX F4BKV IN95
231009_190145    14.074 Rx FT8    -231009_190215    14.074 Rx FT8     15  0.5  480 CQ MI0OBR IO74

231006_041100     7.074 Rx FT8    -17  0.6 1646 RU3DMX <RO80MZ> R-02
231013_183000    14.072 Rx FT8    -19  0.9 4219 CQ HA7EC JN97
`

type mockResetter struct {
	mockLoader
	resets int
	err    error
}

func (m *mockResetter) Reset(context.Context) error {
	m.resets++
	return m.err
}

func newTestReplayer(ldr pipeline.BatchLoader, sink pipeline.Resetter) (*pipeline.Replayer, *pipeline.Queue) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	metrics := newTestMetrics()
	q := pipeline.NewQueue(ldr, stubPoints{}, clock, metrics, pipeline.QueueOptions{Cooldown: time.Second, WriteTimeout: time.Second})
	parser := domain.NewLogLineParser(domain.Receiver{Callsign: "SWL", Grid: "MH09me"}, nil)
	return pipeline.NewReplayer(parser, q, sink, 5*time.Second, slog.Default(), metrics), q
}

func TestReplayer_Replay(t *testing.T) {
	sink := &mockResetter{}
	r, q := newTestReplayer(sink, sink)

	stats, err := r.Replay(context.Background(), strings.NewReader(replayLog))
	require.NoError(t, err)

	assert.Equal(t, pipeline.ReplayStats{
		Lines:   5,
		Entries: 3,
		Skipped: 1,
		Invalid: 1,
		Written: 3,
	}, stats)
	assert.Equal(t, 1, sink.resets)
	assert.Equal(t, []string{
		"CQ DX F4BKV IN95",
		"RU3DMX <RO80MZ> R-02",
		"CQ HA7EC JN97",
	}, sink.Messages())
	assert.Len(t, sink.Batches(), 3, "every entry is flushed as it is read")
	assert.Zero(t, q.Len())
}

func TestReplayer_Replay_CountsOutcomes(t *testing.T) {
	ldr := &mockLoader{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	metrics := newTestMetrics()
	q := pipeline.NewQueue(ldr, stubPoints{}, clock, metrics, pipeline.QueueOptions{WriteTimeout: time.Second})
	parser := domain.NewLogLineParser(domain.Receiver{Callsign: "SWL", Grid: "MH09me"}, nil)
	r := pipeline.NewReplayer(parser, q, nil, 0, slog.Default(), metrics)

	log := replayLog + "231009_190145 14.074 Rx FT9 -10 0.5 480 CQ MI0OBR IO74\n"
	stats, err := r.Replay(context.Background(), strings.NewReader(log))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.UnknownMode)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.ReplayLines.WithLabelValues("parsed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReplayLines.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReplayLines.WithLabelValues("invalid")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReplayLines.WithLabelValues("unknown_mode")), 0)
}

func TestReplayer_Replay_SinkDownKeepsEntries(t *testing.T) {
	sink := &mockResetter{mockLoader: mockLoader{err: errors.New("connection refused")}}
	r, q := newTestReplayer(sink, sink)

	stats, err := r.Replay(context.Background(), strings.NewReader(replayLog))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Entries)
	assert.Zero(t, stats.Written)
	assert.Equal(t, 3, q.Len())
}

func TestReplayer_Replay_ResetFailure(t *testing.T) {
	sink := &mockResetter{err: errors.New("unauthorized")}
	r, q := newTestReplayer(sink, sink)

	_, err := r.Replay(context.Background(), strings.NewReader(replayLog))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset sink")
	assert.Zero(t, q.Len())
	assert.Zero(t, sink.Calls())
}

func TestReplayer_Replay_Cancelled(t *testing.T) {
	sink := &mockResetter{}
	r, _ := newTestReplayer(sink, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Replay(ctx, strings.NewReader(replayLog))
	require.ErrorIs(t, err, context.Canceled)
}
