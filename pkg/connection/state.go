package connection

import (
	"sort"
	"time"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "invalid"
	}
}

// Status is a copy of the Manager's connection state.
type Status struct {
	State              State
	ReconnectAttempts  int
	SubscribedChannels []string
	LastHeartbeatAt    time.Time

	// Exhausted is set once automatic reconnection gave up.
	Exhausted bool
}

func (s Status) Subscribed(channel string) bool {
	for _, c := range s.SubscribedChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// Session identifies who the socket is opened for.
type Session struct {
	Token  string
	UserID string
}

func sortedChannels(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
