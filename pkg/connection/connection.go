// Package connection keeps one push socket alive for the signed-in user.
//
// The Manager dials, subscribes the user's channels, sends heartbeats and,
// when the socket drops without a normal close, reconnects with exponential
// backoff until the attempt limit is reached. Inbound frames are decoded into
// envelopes and handed to an EnvelopeHandler on the read goroutine, one at a
// time and in arrival order.
package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/models"
)

// Socket is one open WebSocket.
type Socket interface {
	// Read blocks for the next text or binary frame. Once the socket is
	// closed it returns a *CloseError.
	Read(ctx context.Context) ([]byte, error)

	Write(ctx context.Context, data []byte) error

	// Close sends a close frame with code and releases the socket.
	Close(code int, reason string) error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// EnvelopeHandler receives every decoded inbound envelope.
type EnvelopeHandler interface {
	HandleEnvelope(env models.Envelope)
}

type EnvelopeHandlerFunc func(env models.Envelope)

func (f EnvelopeHandlerFunc) HandleEnvelope(env models.Envelope) { f(env) }

// CloseError reports how a socket was closed.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: code %d", e.Code)
	}
	return fmt.Sprintf("websocket closed: code %d: %s", e.Code, e.Reason)
}

// Unwrap lets errors.Is match ErrConnection on abnormal closes.
func (e *CloseError) Unwrap() error {
	if e.Code == constants.CloseNormal {
		return nil
	}
	return constants.ErrConnection
}

// CloseCode extracts the close code from err. Errors that are not a
// *CloseError count as abnormal.
func CloseCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return constants.CloseAbnormal
}
