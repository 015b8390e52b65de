// Package gwsws is a connection.Dialer built on github.com/lxzan/gws.
//
// gws delivers frames through event callbacks on its own read goroutine.
// The Socket here turns them back into blocking Read calls so the Manager
// drives every transport the same way.
package gwsws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lxzan/gws"
	"github.com/tripnest/tripsync/pkg/connection"
	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/logger"
)

const (
	// DefaultReadLimit is the largest inbound frame accepted.
	DefaultReadLimit = 1 << 20

	frameBuffer = 64
)

type Option func(d *Dialer)

func WithHeader(h http.Header) Option {
	return func(d *Dialer) { d.header = h }
}

func WithLogger(l logger.Logger) Option {
	return func(d *Dialer) { d.logger = l }
}

// WithCompression enables permessage-deflate.
func WithCompression(enabled bool) Option {
	return func(d *Dialer) { d.compress = enabled }
}

type Dialer struct {
	header    http.Header
	logger    logger.Logger
	compress  bool
	readLimit int
}

var _ connection.Dialer = (*Dialer)(nil)

func New(opts ...Option) *Dialer {
	d := &Dialer{
		logger:    logger.Discard(),
		readLimit: DefaultReadLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ctxDialer lets the TCP dial honour the Dial context.
type ctxDialer struct {
	ctx context.Context
	net.Dialer
}

func (d *ctxDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(d.ctx, network, addr)
}

func (d *Dialer) Dial(ctx context.Context, url string) (connection.Socket, error) {
	s := &Socket{
		frames:  make(chan []byte, frameBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		logger:  d.logger,
	}

	option := &gws.ClientOption{
		Addr:               url,
		RequestHeader:      d.header.Clone(),
		ReadMaxPayloadSize: d.readLimit,
		PermessageDeflate:  gws.PermessageDeflate{Enabled: d.compress},
		NewDialer: func() (gws.Dialer, error) {
			return &ctxDialer{ctx: ctx}, nil
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		option.HandshakeTimeout = time.Until(deadline)
	}

	conn, res, err := gws.NewClient(s, option)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	s.conn = conn

	go conn.ReadLoop()
	return s, nil
}

// Socket implements both connection.Socket and gws.Event.
type Socket struct {
	conn   *gws.Conn
	logger logger.Logger

	frames chan []byte

	// done is closed by OnClose once gws stops reading; err is set before.
	done chan struct{}
	err  error

	// closing is closed by Close so a blocked OnMessage can give up.
	closing   chan struct{}
	closeOnce sync.Once
}

var (
	_ connection.Socket = (*Socket)(nil)
	_ gws.Event         = (*Socket)(nil)
)

func (s *Socket) OnOpen(*gws.Conn) {}

func (s *Socket) OnClose(_ *gws.Conn, err error) {
	s.err = err
	close(s.done)
}

func (s *Socket) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		s.logger.Debug("gwsws: failed to answer ping", "error", err)
	}
}

func (s *Socket) OnPong(*gws.Conn, []byte) {}

func (s *Socket) OnMessage(_ *gws.Conn, message *gws.Message) {
	data := append([]byte(nil), message.Bytes()...)
	message.Close()

	select {
	case s.frames <- data:
	case <-s.closing:
	}
}

// Read returns buffered frames before reporting the close.
func (s *Socket) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.frames:
		return data, nil
	default:
	}

	select {
	case data := <-s.frames:
		return data, nil
	case <-s.done:
		select {
		case data := <-s.frames:
			return data, nil
		default:
		}
		return nil, closeError(s.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// closeError maps the error gws hands to OnClose to a connection.CloseError.
func closeError(err error) error {
	var ce *gws.CloseError
	if errors.As(err, &ce) {
		code := int(ce.Code)
		if code == 0 {
			code = constants.CloseAbnormal
		}
		return &connection.CloseError{Code: code, Reason: string(ce.Reason)}
	}
	if err == nil || errors.Is(err, net.ErrClosed) {
		return &connection.CloseError{Code: constants.CloseAbnormal, Reason: "connection closed locally"}
	}
	return &connection.CloseError{Code: constants.CloseAbnormal, Reason: err.Error()}
}

func (s *Socket) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer func() {
			if err := s.conn.SetWriteDeadline(time.Time{}); err != nil {
				s.logger.Error("gwsws: failed to reset write deadline", "error", err)
			}
		}()
	}
	return s.conn.WriteMessage(gws.OpcodeText, data)
}

// Close sends a close frame with code and shuts the connection down.
func (s *Socket) Close(code int, reason string) error {
	s.closeOnce.Do(func() { close(s.closing) })

	if err := s.conn.WriteClose(uint16(code), []byte(reason)); err != nil && !errors.Is(err, gws.ErrConnClosed) {
		s.logger.Debug("gwsws: failed to write close message", "error", err)
	}
	return nil
}
