package constants

import "time"

const (
	// CloseNormal is the close code for an intentional disconnect.
	// Any other code received on close triggers the reconnect path.
	CloseNormal = 1000
	// CloseAbnormal is reported when the socket dropped without a close frame,
	// including dial failures.
	CloseAbnormal = 1006

	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseDelay   = 5 * time.Second
	DefaultMaxReconnectAttempts = 5

	DefaultHTTPTimeout = 30 * time.Second
	DefaultWSTimeout   = 10 * time.Second
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)
