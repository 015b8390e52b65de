package constants

import "errors"

// Errors
var (
	// ErrConnection means the socket failed to open or errored while open.
	ErrConnection = errors.New("connection error")
	// ErrReconnectExhausted means automatic reconnection stopped after the
	// configured number of attempts. A manual retry is required.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrMessageParse means an inbound frame could not be decoded.
	ErrMessageParse = errors.New("malformed message")
	// ErrFetch means a REST call made on behalf of a store failed.
	ErrFetch = errors.New("fetch failed")
	// ErrUnknownMessageType means an envelope carried a type with no handler.
	ErrUnknownMessageType = errors.New("unknown message type")
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNotFound     = errors.New("entity not found")
	ErrDisposed     = errors.New("already disposed")
	ErrNoBaseURL    = errors.New("base url not set")
	ErrNoUserID     = errors.New("user id not set")
)
