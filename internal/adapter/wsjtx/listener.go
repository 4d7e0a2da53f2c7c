package wsjtx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
)

const (
	// maxDatagram comfortably exceeds the largest WSJT-X telegram.
	maxDatagram = 4096

	// readPoll bounds each socket read so cancellation is noticed promptly.
	readPoll = time.Second
)

// Listener receives WSJT-X telegrams on a UDP socket.
type Listener struct {
	conn   net.PacketConn
	logger *slog.Logger
	buf    []byte
}

// Listen binds addr, e.g. ":2237".
func Listen(addr string, logger *slog.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info("wsjtx listener started", "addr", conn.LocalAddr().String())
	return &Listener{conn: conn, logger: logger, buf: make([]byte, maxDatagram)}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Receive blocks until a telegram arrives or ctx is done. Datagrams that do
// not decode are logged and skipped. Receive is not safe for concurrent use.
func (l *Listener) Receive(ctx context.Context) (domain.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}

		n, from, err := l.conn.ReadFrom(l.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read datagram: %w", err)
		}

		ev, err := Decode(l.buf[:n])
		if err != nil {
			l.logger.Warn("skipping malformed datagram", "error", err, "from", from.String(), "bytes", n)
			continue
		}
		return ev, nil
	}
}

// Close releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}
