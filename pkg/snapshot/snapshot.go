// Package snapshot persists store contents and cache timestamps so a client
// can start warm after a restart.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tripnest/tripsync/pkg/favorites"
	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/store"
)

// Version is written into every Document. Load rejects other versions.
const Version = 1

var (
	ErrNoSnapshot = errors.New("snapshot: nothing saved")
	ErrVersion    = errors.New("snapshot: unsupported version")
)

// Document is everything a client saves.
type Document struct {
	Version int       `json:"version" cbor:"version"`
	SavedAt time.Time `json:"savedAt" cbor:"savedAt"`
	UserID  string    `json:"userId,omitempty" cbor:"userId,omitempty"`

	Bookings      store.Snapshot[models.Booking]      `json:"bookings" cbor:"bookings"`
	Notifications store.Snapshot[models.Notification] `json:"notifications" cbor:"notifications"`
	UnreadCount   int                                 `json:"unreadCount" cbor:"unreadCount"`
	Properties    store.Snapshot[models.Property]     `json:"properties" cbor:"properties"`
	POIs          store.Snapshot[models.POI]          `json:"pois" cbor:"pois"`
	Experiences   store.Snapshot[models.Experience]   `json:"experiences" cbor:"experiences"`
	Favorites     []favorites.Item                    `json:"favorites,omitempty" cbor:"favorites,omitempty"`
}

// Backend stores a single Document.
type Backend interface {
	Save(ctx context.Context, doc *Document) error
	// Load returns ErrNoSnapshot when nothing has been saved.
	Load(ctx context.Context) (*Document, error)
}

func checkVersion(doc *Document) error {
	if doc.Version != Version {
		return fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	return nil
}
