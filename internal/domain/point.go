package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Measurement is the series name every entry is written under.
const Measurement = "entry"

// TimestampLayout is ISO-8601 with microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Point is the sink representation of an Entry.
type Point struct {
	Measurement string
	Time        time.Time
	Tags        map[string]string
	Fields      map[string]any
}

// PointBuilder converts entries to sink points.
type PointBuilder interface {
	Point(e Entry) Point
}

// Point maps e to a sink point. Derived values that cannot be computed, such
// as the distance from a receiver with a malformed grid, are left out.
func (x *Enricher) Point(e Entry) Point {
	t := e.Time.UTC()
	isoYear, isoWeek := t.ISOWeek()

	tags := map[string]string{
		"mode":                e.Mode.String(),
		"cq":                  strconv.FormatBool(e.CQ),
		"receiver_grid":       e.ReceiverGrid,
		"receiver_callsign":   e.ReceiverCallsign,
		"received_hour":       strconv.Itoa(t.Hour()),
		"received_month":      strconv.Itoa(int(t.Month())),
		"received_year":       strconv.Itoa(t.Year()),
		"received_isoyear":    strconv.Itoa(isoYear),
		"received_isoweek":    strconv.Itoa(isoWeek),
		"received_isoweekday": strconv.Itoa(isoWeekday(t)),
		"snr":                 strconv.Itoa(e.SNR),
		"has_sender_grid":     strconv.FormatBool(e.HasSenderGrid()),
	}
	fields := map[string]any{
		"snr":       e.SNR,
		"frequency": e.Frequency,
		"message":   e.Message,
	}

	if name, ok := x.BandName(e); ok {
		tags["band"] = name
	}

	if e.HasSenderGrid() {
		fields["sender_grid"] = e.SenderGrid

		if db, err := x.DistanceBearing(e); err == nil {
			fields["distance"] = db.Distance
			fields["heading"] = db.Bearing
			tags["heading"] = strconv.Itoa(int(db.Bearing))
		} else if x.logger != nil {
			x.logger.Debug("skipping distance and heading", "error", err)
		}

		if coords, err := x.SenderCoordinates(e); err == nil {
			fields["sender_latitude"] = coords.Latitude
			fields["sender_longitude"] = coords.Longitude
		}
	}

	if e.SenderCallsign != "" {
		fields["sender_callsign"] = e.SenderCallsign
	}
	if e.TargetCallsign != "" {
		fields["target_callsign"] = e.TargetCallsign
	}

	return Point{
		Measurement: Measurement,
		Time:        t.Truncate(time.Microsecond),
		Tags:        tags,
		Fields:      fields,
	}
}

// Timestamp formats the point time as ISO-8601 with microseconds.
func (p Point) Timestamp() string {
	return p.Time.UTC().Format(TimestampLayout)
}

// Fingerprint identifies the point's content. Consumers of at-least-once
// sinks use it to discard redelivered points.
func (p Point) Fingerprint() string {
	var b strings.Builder
	b.WriteString(p.Measurement)
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(p.Time.UnixMicro(), 10))

	for _, k := range sortedKeys(p.Tags) {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Tags[k])
	}
	for _, k := range sortedKeys(p.Fields) {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprint(&b, p.Fields[k])
	}
	return fmt.Sprintf("%016x", xxh3.HashString(b.String()))
}

// Record is the wire form of a Point for message-oriented sinks.
type Record struct {
	Measurement string            `json:"measurement" msgpack:"measurement"`
	Time        string            `json:"time" msgpack:"time"`
	Fingerprint string            `json:"fingerprint" msgpack:"fingerprint"`
	Tags        map[string]string `json:"tags" msgpack:"tags"`
	Fields      map[string]any    `json:"fields" msgpack:"fields"`
}

// Record returns the wire form of p.
func (p Point) Record() Record {
	return Record{
		Measurement: p.Measurement,
		Time:        p.Timestamp(),
		Fingerprint: p.Fingerprint(),
		Tags:        p.Tags,
		Fields:      p.Fields,
	}
}

// isoWeekday numbers the days Monday=1 through Sunday=7.
func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
