// Package nhooyrws is a connection.Dialer built on nhooyr.io/websocket. It
// honours contexts on reads, which gorilla does not.
package nhooyrws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tripnest/tripsync/pkg/connection"
	"github.com/tripnest/tripsync/pkg/constants"
	"nhooyr.io/websocket"
)

// DefaultReadLimit is the largest inbound frame accepted.
const DefaultReadLimit = 1 << 20

type Dialer struct {
	Header    http.Header
	ReadLimit int64
}

var _ connection.Dialer = (*Dialer)(nil)

func New() *Dialer {
	return &Dialer{ReadLimit: DefaultReadLimit}
}

func (d *Dialer) Dial(ctx context.Context, url string) (connection.Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &Socket{conn: conn}, nil
}

type Socket struct {
	conn *websocket.Conn
}

var _ connection.Socket = (*Socket)(nil)

func (s *Socket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, closeError(err)
	}
	return data, nil
}

func closeError(err error) error {
	if code := websocket.CloseStatus(err); code != -1 {
		var ce websocket.CloseError
		reason := ""
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		return &connection.CloseError{Code: int(code), Reason: reason}
	}
	return &connection.CloseError{Code: constants.CloseAbnormal, Reason: err.Error()}
}

func (s *Socket) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Socket) Close(code int, reason string) error {
	return s.conn.Close(websocket.StatusCode(code), reason)
}
