package connection

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tripnest/tripsync/pkg/constants"
)

// GlobalAnnouncements is subscribed on every connection regardless of user.
const GlobalAnnouncements = "global:announcements"

type Config struct {
	// URL is the push endpoint, e.g. "wss://api.example.com/ws". The access
	// token is appended as the "token" query parameter.
	URL string

	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int

	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration
}

// NewConfig returns a Config for url with the default timings.
func NewConfig(url string) *Config {
	return &Config{
		URL:                  url,
		HeartbeatInterval:    constants.DefaultHeartbeatInterval,
		ReconnectBaseDelay:   constants.DefaultReconnectBaseDelay,
		MaxReconnectAttempts: constants.DefaultMaxReconnectAttempts,
		WriteTimeout:         constants.DefaultWSTimeout,
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return constants.ErrNoBaseURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != constants.WebsocketScheme && u.Scheme != constants.WebsocketSecureScheme {
		return fmt.Errorf("invalid url %q: scheme must be %s or %s", c.URL, constants.WebsocketScheme, constants.WebsocketSecureScheme)
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.ReconnectBaseDelay <= 0 {
		return errors.New("reconnect base delay must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("max reconnect attempts must not be negative")
	}
	return nil
}

// UserChannels are the channels subscribed on open for userID.
func UserChannels(userID string) []string {
	return []string{
		"user:" + userID + ":notifications",
		"user:" + userID + ":bookings",
		"user:" + userID + ":favorites",
		GlobalAnnouncements,
	}
}

// endpoint returns the dial URL with token as a query parameter.
func (c *Config) endpoint(token string) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
