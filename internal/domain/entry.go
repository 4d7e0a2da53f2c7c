package domain

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Entry is one decoded contact as heard by a receiving station. Entries are
// values: optional string fields are empty when absent so two entries with
// the same content compare equal with ==.
type Entry struct {
	Mode      Mode
	SNR       int
	Frequency int64 // Hz
	Message   string
	Time      time.Time // UTC, microsecond precision

	ReceiverGrid     string
	ReceiverCallsign string

	SenderGrid     string
	SenderCallsign string
	TargetCallsign string

	CQ bool
}

// HasSenderGrid reports whether the sender announced a locator.
func (e Entry) HasSenderGrid() bool { return e.SenderGrid != "" }

// String renders the entry in the column layout of the WSJT-X band activity
// window.
func (e Entry) String() string {
	return fmt.Sprintf("%s\t% 3d\t%s\t% 9.3f kHz\t%s",
		e.Time.Format("2006-01-02 15:04:05.000000"), e.SNR, e.Mode, float64(e.Frequency)/1000, e.Message)
}

// LogValue implements slog.LogValuer.
func (e Entry) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Time("time", e.Time),
		slog.String("mode", e.Mode.String()),
		slog.Int("snr", e.SNR),
		slog.Int64("frequency", e.Frequency),
		slog.String("message", e.Message),
	}
	if e.SenderCallsign != "" {
		attrs = append(attrs, slog.String("sender_callsign", e.SenderCallsign))
	}
	if e.SenderGrid != "" {
		attrs = append(attrs, slog.String("sender_grid", e.SenderGrid))
	}
	return slog.GroupValue(attrs...)
}

// maxTimeOffset bounds a decoder time offset, in seconds.
const maxTimeOffset = 24 * 60 * 60

// validTimeOffset reports whether s is a finite offset within maxTimeOffset.
// NaN fails both comparisons.
func validTimeOffset(s float64) bool {
	return s >= -maxTimeOffset && s <= maxTimeOffset
}

// secondsToDuration converts fractional seconds to a duration rounded to
// the microsecond, the finest resolution the sink stores.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}
