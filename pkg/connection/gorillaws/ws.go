// Package gorillaws provides the default connection.Dialer, built on
// github.com/gorilla/websocket.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/tripnest/tripsync/pkg/connection"
	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/logger"
)

// DefaultDialer is gorilla's default dialer with compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// closeTimeout bounds the close frame write in Socket.Close.
const closeTimeout = time.Second

type Option func(d *Dialer)

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) Option {
	return func(d *Dialer) { d.header = h }
}

func WithLogger(l logger.Logger) Option {
	return func(d *Dialer) { d.logger = l }
}

// WithReadLimit caps the size of inbound frames.
func WithReadLimit(n int64) Option {
	return func(d *Dialer) { d.readLimit = n }
}

type Dialer struct {
	Dialer *gorilla.Dialer

	header    http.Header
	logger    logger.Logger
	readLimit int64
}

var _ connection.Dialer = (*Dialer)(nil)

func New(opts ...Option) *Dialer {
	d := &Dialer{
		Dialer: DefaultDialer,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dialer) Dial(ctx context.Context, url string) (connection.Socket, error) {
	conn, res, err := d.Dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return &Socket{Conn: conn, logger: d.logger}, nil
}

type Socket struct {
	Conn *gorilla.Conn

	// connLock serializes writes. gorilla allows one concurrent writer.
	connLock sync.Mutex
	logger   logger.Logger
}

var _ connection.Socket = (*Socket)(nil)

// Read ignores ctx. Closing the socket unblocks a pending Read.
func (s *Socket) Read(_ context.Context) ([]byte, error) {
	for {
		typ, data, err := s.Conn.ReadMessage()
		if err != nil {
			return nil, closeError(err)
		}
		if typ == gorilla.TextMessage || typ == gorilla.BinaryMessage {
			return data, nil
		}
	}
}

// closeError maps gorilla's read errors to a connection.CloseError.
func closeError(err error) error {
	var ce *gorilla.CloseError
	if errors.As(err, &ce) {
		return &connection.CloseError{Code: ce.Code, Reason: ce.Text}
	}
	if errors.Is(err, net.ErrClosed) {
		return &connection.CloseError{Code: constants.CloseAbnormal, Reason: "connection closed locally"}
	}
	return &connection.CloseError{Code: constants.CloseAbnormal, Reason: err.Error()}
}

func (s *Socket) Write(ctx context.Context, data []byte) error {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.Conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer func() {
			if err := s.Conn.SetWriteDeadline(time.Time{}); err != nil {
				s.logger.Error("gorillaws: failed to reset write deadline", "error", err)
			}
		}()
	}
	return s.Conn.WriteMessage(gorilla.TextMessage, data)
}

// Close tries to send a close frame, then closes the connection whether or
// not the frame was written.
func (s *Socket) Close(code int, reason string) error {
	s.connLock.Lock()
	msg := gorilla.FormatCloseMessage(code, reason)
	if err := s.Conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(closeTimeout)); err != nil {
		s.logger.Debug("gorillaws: failed to write close message", "error", err)
	}
	s.connLock.Unlock()

	return s.Conn.Close()
}
