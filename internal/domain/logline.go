package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrInvalidLine marks a log line with an unparseable field.
	ErrInvalidLine = errors.New("invalid log line")

	// ErrUnknownMode marks a contact whose mode cannot be classified.
	ErrUnknownMode = errors.New("unknown mode")
)

// logTimeLayout is the WSJT-X ALL.TXT timestamp, e.g. 231006_035130.
const logTimeLayout = "060102_150405"

// logFieldCount is the number of whitespace-separated fields of an ALL.TXT
// line; the last one holds the message with its internal spacing.
const logFieldCount = 8

// Bounds on the numeric fields of a log line. Anything outside them is a
// corrupt line; inside them the conversion to integer units cannot overflow.
const (
	maxDialMHz         = 1_000_000 // 1 THz
	maxFrequencyOffset = 1_000_000 // Hz
)

// Receiver identifies the station that produced a log.
type Receiver struct {
	Callsign string
	Grid     string
}

// LogLineParser parses lines of the WSJT-X ALL.TXT log:
//
//	231006_035130     3.573 Rx FT8    -20  0.6 2753 CQ DX F4BKV IN95
//	<time>        <dial MHz> <dir> <mode> <snr> <dt> <df> <message>
type LogLineParser struct {
	receiver Receiver
	messages *MessageParser
}

// NewLogLineParser creates a parser that stamps every entry with receiver.
func NewLogLineParser(receiver Receiver, messages *MessageParser) *LogLineParser {
	if messages == nil {
		messages = NewMessageParser(nil)
	}
	return &LogLineParser{receiver: receiver, messages: messages}
}

// Parse returns the entry described by line. Lines that are too short or
// carry no message yield a nil entry and no error.
func (p *LogLineParser) Parse(line string) (*Entry, error) {
	fields := splitFields(line, logFieldCount)
	if len(fields) < logFieldCount {
		return nil, nil
	}
	rawTime, rawFreq, rawMode, rawSNR, rawOffset, rawDF := fields[0], fields[1], fields[3], fields[4], fields[5], fields[6]

	message := strings.TrimSpace(fields[7])
	if message == "" {
		return nil, nil
	}

	stamp, err := time.ParseInLocation(logTimeLayout, rawTime, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: time %q: %w", ErrInvalidLine, rawTime, err)
	}
	mhz, err := strconv.ParseFloat(rawFreq, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: frequency %q: %w", ErrInvalidLine, rawFreq, err)
	}
	if math.IsNaN(mhz) || mhz < 0 || mhz > maxDialMHz {
		return nil, fmt.Errorf("%w: frequency %q out of range", ErrInvalidLine, rawFreq)
	}
	snr, err := strconv.Atoi(rawSNR)
	if err != nil {
		return nil, fmt.Errorf("%w: snr %q: %w", ErrInvalidLine, rawSNR, err)
	}
	offset, err := strconv.ParseFloat(rawOffset, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: time offset %q: %w", ErrInvalidLine, rawOffset, err)
	}
	if !validTimeOffset(offset) {
		return nil, fmt.Errorf("%w: time offset %q out of range", ErrInvalidLine, rawOffset)
	}
	df, err := strconv.ParseInt(rawDF, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: frequency offset %q: %w", ErrInvalidLine, rawDF, err)
	}
	if df < -maxFrequencyOffset || df > maxFrequencyOffset {
		return nil, fmt.Errorf("%w: frequency offset %q out of range", ErrInvalidLine, rawDF)
	}
	mode, ok := ResolveMode(rawMode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, rawMode)
	}

	parsed := p.messages.Parse(message)
	return &Entry{
		Mode:             mode,
		SNR:              snr,
		Frequency:        int64(math.Round(mhz*1_000_000)) + df,
		Message:          message,
		Time:             stamp.Add(secondsToDuration(offset)),
		ReceiverGrid:     p.receiver.Grid,
		ReceiverCallsign: p.receiver.Callsign,
		SenderGrid:       parsed.SenderGrid,
		SenderCallsign:   parsed.SenderCallsign,
		CQ:               parsed.CQ,
	}, nil
}

// splitFields splits the trimmed line on runs of whitespace into at most n
// fields. The last field keeps the remainder of the line verbatim.
func splitFields(line string, n int) []string {
	s := strings.TrimSpace(line)
	fields := make([]string, 0, n)
	for s != "" && len(fields) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		fields = append(fields, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		fields = append(fields, s)
	}
	return fields
}
