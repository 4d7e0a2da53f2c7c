package domain

import (
	"fmt"
	"strings"
	"time"
)

// Event is a telegram received from a running WSJT-X instance.
type Event interface {
	// ClientID is the identifier of the sending WSJT-X instance.
	ClientID() string
}

// HeartbeatEvent announces that a WSJT-X instance is alive.
type HeartbeatEvent struct {
	ID            string
	MaximumSchema uint32
	Version       string
	Revision      string
}

// StatusEvent reports the radio and station configuration.
type StatusEvent struct {
	ID            string
	DialFrequency uint64 // Hz
	Mode          string
	DXCall        string
	Report        string
	TxMode        string
	TxEnabled     bool
	Transmitting  bool
	Decoding      bool
	RxDF          uint32
	TxDF          uint32
	DECall        string
	DEGrid        string
}

// DecodeEvent carries one decoded transmission.
type DecodeEvent struct {
	ID             string
	New            bool
	TimeOfDay      uint32 // milliseconds since UTC midnight
	SNR            int32
	DeltaTime      float64 // seconds
	DeltaFrequency uint32  // Hz above the dial frequency
	Mode           string  // single-character wire code
	Message        string
	LowConfidence  bool
	OffAir         bool
}

// WSPRDecodeEvent carries one decoded WSPR beacon.
type WSPRDecodeEvent struct {
	ID        string
	New       bool
	TimeOfDay uint32
	SNR       int32
	DeltaTime float64
	Frequency uint64 // absolute, Hz
	Drift     int32
	Callsign  string
	Grid      string
	Power     int32 // dBm
	OffAir    bool
}

// UnknownEvent is any telegram type the service does not interpret.
type UnknownEvent struct {
	ID   string
	Type uint32
}

func (e HeartbeatEvent) ClientID() string  { return e.ID }
func (e StatusEvent) ClientID() string     { return e.ID }
func (e DecodeEvent) ClientID() string     { return e.ID }
func (e WSPRDecodeEvent) ClientID() string { return e.ID }
func (e UnknownEvent) ClientID() string    { return e.ID }

// Station is the receiving station as last reported by a Status event.
type Station struct {
	DialFrequency int64
	Grid          string
	Callsign      string
}

// Tuned reports whether a dial frequency has been established.
func (s Station) Tuned() bool { return s.DialFrequency != 0 }

// ResolveTimeOfDay anchors a WSJT-X time of day (milliseconds since midnight
// UTC) to today or yesterday, whichever is closer to now, and adds the
// decoder's time offset. An offset that is not finite or exceeds a day is
// ignored.
func ResolveTimeOfDay(now time.Time, millis uint32, deltaT float64) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tod := time.Duration(millis) * time.Millisecond

	today := midnight.Add(tod)
	yesterday := midnight.AddDate(0, 0, -1).Add(tod)

	stamp := yesterday
	if absDuration(now.Sub(today)) < absDuration(now.Sub(yesterday)) {
		stamp = today
	}
	if !validTimeOffset(deltaT) {
		return stamp
	}
	return stamp.Add(secondsToDuration(deltaT))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// EntryFromDecode builds an entry from a decode heard on station.
func EntryFromDecode(station Station, ev DecodeEvent, now time.Time, messages *MessageParser) (Entry, error) {
	mode, ok := ResolveMode(ev.Mode)
	if !ok {
		return Entry{}, fmt.Errorf("%w: wire code %q", ErrUnknownMode, ev.Mode)
	}

	parsed := messages.Parse(ev.Message)
	return Entry{
		Mode:             mode,
		SNR:              int(ev.SNR),
		Frequency:        station.DialFrequency + int64(ev.DeltaFrequency),
		Message:          ev.Message,
		Time:             ResolveTimeOfDay(now, ev.TimeOfDay, ev.DeltaTime),
		ReceiverGrid:     station.Grid,
		ReceiverCallsign: station.Callsign,
		SenderGrid:       parsed.SenderGrid,
		SenderCallsign:   parsed.SenderCallsign,
		CQ:               parsed.CQ,
	}, nil
}

// EntryFromWSPRDecode builds an entry from a WSPR beacon heard on station.
// The beacon itself carries the sender callsign, grid, and power.
func EntryFromWSPRDecode(station Station, ev WSPRDecodeEvent, now time.Time, grammar Grammar) Entry {
	e := Entry{
		Mode:             ModeWSPR,
		SNR:              int(ev.SNR),
		Frequency:        int64(ev.Frequency),
		Message:          strings.Join(strings.Fields(fmt.Sprintf("WSPR %s %s %d", ev.Callsign, ev.Grid, ev.Power)), " "),
		Time:             ResolveTimeOfDay(now, ev.TimeOfDay, ev.DeltaTime),
		ReceiverGrid:     station.Grid,
		ReceiverCallsign: station.Callsign,
		SenderCallsign:   ev.Callsign,
	}
	if grammar.IsLocatorToken(ev.Grid) {
		e.SenderGrid = ev.Grid
	}
	return e
}
