package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Transformer converts a WSJT-X event into an entry. The boolean result is
// false for events that produce no entry.
type Transformer interface {
	Transform(ctx context.Context, ev domain.Event) (domain.Entry, bool, error)
}

// Drop reasons for decodes that never reach the queue.
const (
	dropNotTuned      = "not_tuned"
	dropOffAir        = "off_air"
	dropNotNew        = "not_new"
	dropLowConfidence = "low_confidence"
	dropEmptyMessage  = "empty_message"
	dropUnknownMode   = "unknown_mode"
)

// LiveTransformer tracks the station state reported by WSJT-X and turns
// decodes heard on it into entries.
type LiveTransformer struct {
	clock    clockwork.Clock
	messages *domain.MessageParser
	grammar  domain.Grammar
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	station domain.Station
}

// NewLiveTransformer creates a LiveTransformer. station seeds the receiver
// callsign and grid until WSJT-X reports its own; a nil grammar selects
// the WSJT-X grammar.
func NewLiveTransformer(station domain.Station, grammar domain.Grammar, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *LiveTransformer {
	if grammar == nil {
		grammar = domain.WSJTXGrammar{}
	}
	return &LiveTransformer{
		clock:    clock,
		messages: domain.NewMessageParser(grammar),
		grammar:  grammar,
		logger:   logger,
		metrics:  metrics,
		station:  station,
	}
}

// Station returns the current station state.
func (t *LiveTransformer) Station() domain.Station {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.station
}

// Tuned reports whether WSJT-X has reported a dial frequency.
func (t *LiveTransformer) Tuned() bool {
	return t.Station().Tuned()
}

func (t *LiveTransformer) Transform(_ context.Context, ev domain.Event) (domain.Entry, bool, error) {
	switch ev := ev.(type) {
	case domain.HeartbeatEvent:
		t.metrics.DecodesReceived.WithLabelValues("heartbeat").Inc()
		return domain.Entry{}, false, nil

	case domain.StatusEvent:
		t.metrics.DecodesReceived.WithLabelValues("status").Inc()
		t.updateStation(ev)
		return domain.Entry{}, false, nil

	case domain.DecodeEvent:
		t.metrics.DecodesReceived.WithLabelValues("decode").Inc()
		return t.decode(ev)

	case domain.WSPRDecodeEvent:
		t.metrics.DecodesReceived.WithLabelValues("wspr_decode").Inc()
		return t.wsprDecode(ev)

	default:
		t.metrics.DecodesReceived.WithLabelValues("other").Inc()
		t.logger.Debug("ignoring telegram", "client", ev.ClientID(), "event", fmt.Sprintf("%T", ev))
		return domain.Entry{}, false, nil
	}
}

func (t *LiveTransformer) updateStation(ev domain.StatusEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dial := int64(ev.DialFrequency)
	if dial != t.station.DialFrequency {
		t.logger.Info("frequency changed", "client", ev.ID, "dial_hz", dial, "previous_hz", t.station.DialFrequency)
	}
	t.station.DialFrequency = dial
	if ev.DEGrid != "" {
		t.station.Grid = ev.DEGrid
	}
	if ev.DECall != "" {
		t.station.Callsign = ev.DECall
	}
}

func (t *LiveTransformer) decode(ev domain.DecodeEvent) (domain.Entry, bool, error) {
	station := t.Station()
	switch {
	case !station.Tuned():
		return t.drop(dropNotTuned)
	case ev.OffAir:
		return t.drop(dropOffAir)
	case !ev.New:
		return t.drop(dropNotNew)
	case ev.LowConfidence:
		t.logger.Debug("low confidence decode", "message", ev.Message, "snr", ev.SNR)
		return t.drop(dropLowConfidence)
	case strings.TrimSpace(ev.Message) == "":
		return t.drop(dropEmptyMessage)
	}

	entry, err := domain.EntryFromDecode(station, ev, t.clock.Now(), t.messages)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMode) {
			t.metrics.DecodesDropped.WithLabelValues(dropUnknownMode).Inc()
		}
		return domain.Entry{}, false, err
	}
	return entry, true, nil
}

func (t *LiveTransformer) wsprDecode(ev domain.WSPRDecodeEvent) (domain.Entry, bool, error) {
	station := t.Station()
	switch {
	case !station.Tuned():
		return t.drop(dropNotTuned)
	case ev.OffAir:
		return t.drop(dropOffAir)
	case !ev.New:
		return t.drop(dropNotNew)
	}
	return domain.EntryFromWSPRDecode(station, ev, t.clock.Now(), t.grammar), true, nil
}

func (t *LiveTransformer) drop(reason string) (domain.Entry, bool, error) {
	t.metrics.DecodesDropped.WithLabelValues(reason).Inc()
	return domain.Entry{}, false, nil
}
