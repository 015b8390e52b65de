// Package models holds the entities synchronized by tripsync, the patch type
// used for optimistic and pushed updates, and the push envelope.
package models

import (
	"sort"
	"time"
)

// Kind names an entity type. It prefixes cache keys and selects which store
// an event is addressed to.
type Kind string

const (
	KindBooking      Kind = "booking"
	KindNotification Kind = "notification"
	KindProperty     Kind = "property"
	KindPOI          Kind = "poi"
	KindExperience   Kind = "experience"
)

// Entity is implemented by every synchronized record.
type Entity interface {
	EntityID() string
}

// Patch is a partial entity keyed by JSON field name.
type Patch map[string]any

// Merge returns a new patch with other's fields laid over p's.
func (p Patch) Merge(other Patch) Patch {
	out := make(Patch, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (p Patch) Clone() Patch {
	if p == nil {
		return nil
	}
	return p.Merge(nil)
}

// Keys returns the patched field names in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCheckedIn BookingStatus = "checked_in"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

type Booking struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"userId"`
	PropertyID         string        `json:"propertyId,omitempty"`
	ExperienceID       string        `json:"experienceId,omitempty"`
	Status             BookingStatus `json:"status"`
	CheckIn            time.Time     `json:"checkIn"`
	CheckOut           time.Time     `json:"checkOut"`
	Guests             int           `json:"guests"`
	TotalPrice         float64       `json:"totalPrice"`
	Currency           string        `json:"currency,omitempty"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func (b Booking) EntityID() string { return b.ID }

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  Priority       `json:"priority,omitempty"`
	Read      bool           `json:"read"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (n Notification) EntityID() string { return n.ID }

// Urgent reports whether the notification should interrupt the user.
func (n Notification) Urgent() bool {
	return n.Priority == PriorityHigh || n.Priority == PriorityUrgent
}

type Property struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	City          string    `json:"city"`
	Country       string    `json:"country"`
	PricePerNight float64   `json:"pricePerNight"`
	Rating        float64   `json:"rating"`
	Available     bool      `json:"available"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p Property) EntityID() string { return p.ID }

type POI struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	OpeningHours string    `json:"openingHours,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (p POI) EntityID() string { return p.ID }

type Experience struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	PropertyID      string    `json:"propertyId,omitempty"`
	Price           float64   `json:"price"`
	DurationMinutes int       `json:"durationMinutes"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (e Experience) EntityID() string { return e.ID }
