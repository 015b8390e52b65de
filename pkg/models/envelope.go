package models

import (
	"time"

	json "github.com/goccy/go-json"
)

type MessageType string

const (
	MessageNotificationNew     MessageType = "NOTIFICATION_NEW"
	MessageNotificationUpdate  MessageType = "NOTIFICATION_UPDATE"
	MessageBookingUpdate       MessageType = "BOOKING_UPDATE"
	MessageBookingStatusChange MessageType = "BOOKING_STATUS_CHANGE"
	MessagePropertyUpdate      MessageType = "PROPERTY_UPDATE"
	MessagePOIUpdate           MessageType = "POI_UPDATE"
	MessageExperienceUpdate    MessageType = "EXPERIENCE_UPDATE"
	MessageUserUpdate          MessageType = "USER_UPDATE"
	MessageSystem              MessageType = "SYSTEM_MESSAGE"
	MessageHeartbeat           MessageType = "HEARTBEAT"
)

// Envelope is the frame exchanged in both directions over the socket.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"userId,omitempty"`
}

// NewEnvelope marshals payload into an envelope stamped with at.
func NewEnvelope(typ MessageType, payload any, at time.Time) (Envelope, error) {
	env := Envelope{Type: typ, Timestamp: at.UTC()}
	if payload == nil {
		env.Payload = json.RawMessage("{}")
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}

const (
	ActionSubscribe   = "subscribe"
	ActionSyncRequest = "sync_request"
)

// SystemPayload is carried by SYSTEM_MESSAGE in both directions. Outbound
// frames set Action; inbound announcements set Message and Level.
type SystemPayload struct {
	Action  string     `json:"action,omitempty"`
	Channel string     `json:"channel,omitempty"`
	Since   *time.Time `json:"since,omitempty"`
	Message string     `json:"message,omitempty"`
	Level   string     `json:"level,omitempty"`
	Title   string     `json:"title,omitempty"`
}

type BookingPayload struct {
	BookingID      string        `json:"bookingId"`
	Status         BookingStatus `json:"status,omitempty"`
	PreviousStatus BookingStatus `json:"previousStatus,omitempty"`
	Changes        Patch         `json:"changes,omitempty"`
	Message        string        `json:"message,omitempty"`
}

// Patch folds Status into Changes.
func (p BookingPayload) Patch() Patch {
	out := p.Changes.Clone()
	if out == nil {
		out = Patch{}
	}
	if p.Status != "" {
		out["status"] = string(p.Status)
	}
	return out
}

// EntityUpdatePayload covers PROPERTY_UPDATE, POI_UPDATE and
// EXPERIENCE_UPDATE. Servers send either a generic id or a kind-specific one.
type EntityUpdatePayload struct {
	ID           string `json:"id,omitempty"`
	PropertyID   string `json:"propertyId,omitempty"`
	POIID        string `json:"poiId,omitempty"`
	ExperienceID string `json:"experienceId,omitempty"`
	Name         string `json:"name,omitempty"`
	Message      string `json:"message,omitempty"`
	Changes      Patch  `json:"changes,omitempty"`
}

func (p EntityUpdatePayload) EntityID() string {
	switch {
	case p.ID != "":
		return p.ID
	case p.PropertyID != "":
		return p.PropertyID
	case p.POIID != "":
		return p.POIID
	default:
		return p.ExperienceID
	}
}

type UserUpdatePayload struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
	Changes Patch  `json:"changes,omitempty"`
}

// NotificationUpdatePayload is carried by NOTIFICATION_UPDATE.
type NotificationUpdatePayload struct {
	ID             string `json:"id,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
	Read           *bool  `json:"read,omitempty"`
	Changes        Patch  `json:"changes,omitempty"`
}

func (p NotificationUpdatePayload) EntityID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.NotificationID
}

// Patch folds Read into Changes.
func (p NotificationUpdatePayload) Patch() Patch {
	out := p.Changes.Clone()
	if out == nil {
		out = Patch{}
	}
	if p.Read != nil {
		out["read"] = *p.Read
	}
	return out
}
