package events

import (
	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/toast"
)

// NotificationReceived announces a notification pushed by the server.
type NotificationReceived struct {
	Notification models.Notification
}

// NotificationChanged carries a partial update to an existing notification.
type NotificationChanged struct {
	ID    string
	Patch models.Patch
}

// EntityPatched asks the store for Kind to merge Patch into entity ID.
type EntityPatched struct {
	Kind  models.Kind
	ID    string
	Patch models.Patch
}

// EntityInvalidated marks entity ID stale so the next fetch hits the network.
type EntityInvalidated struct {
	Kind models.Kind
	ID   string
}

type ToastRequested struct {
	Toast toast.Toast
}

// ShowToasts forwards every ToastRequested event to s.
func ShowToasts(b *Bus, s toast.Surface) (unsubscribe func()) {
	return On(b, func(ev ToastRequested) { s.Show(ev.Toast) })
}
