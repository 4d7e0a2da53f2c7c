package wsjtx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
)

// Magic is the first word of every WSJT-X datagram.
const Magic = 0xadbccbda

// Telegram types.
const (
	TypeHeartbeat  = 0
	TypeStatus     = 1
	TypeDecode     = 2
	TypeWSPRDecode = 10
)

// nullLength marks a null QString/QByteArray.
const nullLength = 0xffffffff

var (
	// ErrBadMagic is returned for datagrams that are not WSJT-X telegrams.
	ErrBadMagic = errors.New("not a WSJT-X datagram")

	// ErrTruncated is returned when a datagram ends inside a field.
	ErrTruncated = errors.New("truncated WSJT-X datagram")
)

// Decode parses a WSJT-X datagram. Types this service does not interpret
// decode to domain.UnknownEvent. Fields appended by newer schema versions
// are ignored.
func Decode(data []byte) (domain.Event, error) {
	r := &reader{buf: data}

	if magic := r.uint32(); r.err == nil && magic != Magic {
		return nil, fmt.Errorf("%w: magic %#x", ErrBadMagic, magic)
	}
	r.uint32() // schema
	typ := r.uint32()
	id := r.utf8()
	if r.err != nil {
		return nil, fmt.Errorf("decode header: %w", r.err)
	}

	var ev domain.Event
	switch typ {
	case TypeHeartbeat:
		ev = domain.HeartbeatEvent{
			ID:            id,
			MaximumSchema: r.uint32(),
			Version:       r.utf8(),
			Revision:      r.utf8(),
		}
	case TypeStatus:
		ev = domain.StatusEvent{
			ID:            id,
			DialFrequency: r.uint64(),
			Mode:          r.utf8(),
			DXCall:        r.utf8(),
			Report:        r.utf8(),
			TxMode:        r.utf8(),
			TxEnabled:     r.bool(),
			Transmitting:  r.bool(),
			Decoding:      r.bool(),
			RxDF:          r.uint32(),
			TxDF:          r.uint32(),
			DECall:        r.utf8(),
			DEGrid:        r.utf8(),
		}
	case TypeDecode:
		ev = domain.DecodeEvent{
			ID:             id,
			New:            r.bool(),
			TimeOfDay:      r.uint32(),
			SNR:            r.int32(),
			DeltaTime:      r.float64(),
			DeltaFrequency: r.uint32(),
			Mode:           r.utf8(),
			Message:        r.utf8(),
			LowConfidence:  r.optionalBool(),
			OffAir:         r.optionalBool(),
		}
	case TypeWSPRDecode:
		ev = domain.WSPRDecodeEvent{
			ID:        id,
			New:       r.bool(),
			TimeOfDay: r.uint32(),
			SNR:       r.int32(),
			DeltaTime: r.float64(),
			Frequency: r.uint64(),
			Drift:     r.int32(),
			Callsign:  r.utf8(),
			Grid:      r.utf8(),
			Power:     r.int32(),
			OffAir:    r.optionalBool(),
		}
	default:
		return domain.UnknownEvent{ID: id, Type: typ}, nil
	}

	if r.err != nil {
		return nil, fmt.Errorf("decode telegram type %d: %w", typ, r.err)
	}
	return ev, nil
}

// reader consumes QDataStream big-endian values. The first short read
// sticks; later reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uint32() uint32 {
	if b := r.next(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) int32() int32 { return int32(r.uint32()) }

func (r *reader) uint64() uint64 {
	if b := r.next(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) float64() float64 { return math.Float64frombits(r.uint64()) }

func (r *reader) bool() bool {
	if b := r.next(1); b != nil {
		return b[0] != 0
	}
	return false
}

// optionalBool reads a trailing flag that older schema versions omit.
func (r *reader) optionalBool() bool {
	if r.err == nil && r.off == len(r.buf) {
		return false
	}
	return r.bool()
}

func (r *reader) utf8() string {
	n := r.uint32()
	if r.err != nil || n == nullLength {
		return ""
	}
	return string(r.next(int(n)))
}
