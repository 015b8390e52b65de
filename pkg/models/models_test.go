package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchMerge(t *testing.T) {
	push := Patch{"status": "confirmed", "guests": 2}
	user := Patch{"status": "cancelled"}

	merged := push.Merge(user)
	assert.Equal(t, Patch{"status": "cancelled", "guests": 2}, merged)
	// inputs are left alone
	assert.Equal(t, "confirmed", push["status"])
	assert.Equal(t, []string{"guests", "status"}, merged.Keys())
	assert.Nil(t, Patch(nil).Clone())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(MessageSystem, SystemPayload{Action: ActionSubscribe, Channel: "global:announcements"}, at)
	require.NoError(t, err)
	assert.Equal(t, MessageSystem, env.Type)
	assert.Equal(t, at, env.Timestamp)

	var p SystemPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, ActionSubscribe, p.Action)
	assert.Equal(t, "global:announcements", p.Channel)

	empty, err := NewEnvelope(MessageHeartbeat, nil, at)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(empty.Payload))
}

func TestBookingPayloadPatch(t *testing.T) {
	p := BookingPayload{BookingID: "b1", Status: BookingConfirmed, Changes: Patch{"guests": 3}}
	assert.Equal(t, Patch{"guests": 3, "status": "confirmed"}, p.Patch())
	assert.Equal(t, Patch{}, BookingPayload{BookingID: "b1"}.Patch())
}

func TestEntityUpdatePayloadID(t *testing.T) {
	assert.Equal(t, "p1", EntityUpdatePayload{PropertyID: "p1"}.EntityID())
	assert.Equal(t, "x", EntityUpdatePayload{ID: "x", POIID: "y"}.EntityID())
	assert.Equal(t, "e1", EntityUpdatePayload{ExperienceID: "e1"}.EntityID())
	assert.True(t, Notification{Priority: PriorityUrgent}.Urgent())
	assert.False(t, Notification{Priority: PriorityNormal}.Urgent())
}

func TestNotificationUpdatePayload(t *testing.T) {
	read := true
	p := NotificationUpdatePayload{NotificationID: "n1", Read: &read, Changes: Patch{"title": "x"}}
	assert.Equal(t, "n1", p.EntityID())
	assert.Equal(t, Patch{"title": "x", "read": true}, p.Patch())

	assert.Equal(t, Patch{}, NotificationUpdatePayload{ID: "n2"}.Patch())
}
