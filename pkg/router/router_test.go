package router

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/favorites"
	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/store"
	"github.com/tripnest/tripsync/pkg/toast"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type recorded struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorded) add(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := ev.(events.ToastRequested); ok {
		return
	}
	r.events = append(r.events, ev)
}

func (r *recorded) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

type harness struct {
	router *Router
	bus    *events.Bus
	favs   *favorites.Set
	toasts *toast.Recorder
	events *recorded
}

func newHarness() *harness {
	h := &harness{
		bus:    events.NewBus(nil),
		favs:   favorites.New(),
		toasts: &toast.Recorder{},
		events: &recorded{},
	}
	events.ShowToasts(h.bus, h.toasts)
	h.bus.Subscribe(h.events.add)
	h.router = New(h.bus, WithFavorites(h.favs))
	return h
}

func envelope(t *testing.T, typ models.MessageType, payload any) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(typ, payload, now)
	require.NoError(t, err)
	return env
}

func TestNotificationNew(t *testing.T) {
	h := newHarness()

	h.router.HandleEnvelope(envelope(t, models.MessageNotificationNew, models.Notification{
		ID: "n1", Title: "Hello", Message: "Welcome", Priority: models.PriorityNormal,
	}))
	h.router.HandleEnvelope(envelope(t, models.MessageNotificationNew, models.Notification{
		ID: "n2", Title: "Flight delayed", Message: "Check-in moved", Priority: models.PriorityUrgent,
	}))

	evs := h.events.all()
	require.Len(t, evs, 2)
	first := evs[0].(events.NotificationReceived)
	assert.Equal(t, "n1", first.Notification.ID)
	assert.Equal(t, now, first.Notification.CreatedAt, "missing creation time comes from the envelope")

	toasts := h.toasts.Toasts()
	require.Len(t, toasts, 1, "only high priority notifications toast")
	assert.Equal(t, "Flight delayed", toasts[0].Title)
	assert.Equal(t, toast.LevelWarning, toasts[0].Level)
}

func TestNotificationUpdate(t *testing.T) {
	h := newHarness()
	read := true

	h.router.HandleEnvelope(envelope(t, models.MessageNotificationUpdate, models.NotificationUpdatePayload{
		NotificationID: "n1", Read: &read,
	}))

	assert.Equal(t, []events.Event{
		events.NotificationChanged{ID: "n1", Patch: models.Patch{"read": true}},
	}, h.events.all())
	assert.Empty(t, h.toasts.Toasts())
}

func TestBookingUpdates(t *testing.T) {
	tests := []struct {
		name      string
		typ       models.MessageType
		payload   models.BookingPayload
		wantPatch models.Patch
		wantToast string
		wantLevel toast.Level
	}{
		{
			name:      "status change",
			typ:       models.MessageBookingStatusChange,
			payload:   models.BookingPayload{BookingID: "b1", Status: models.BookingConfirmed},
			wantPatch: models.Patch{"status": "confirmed"},
			wantToast: "Your booking is confirmed",
			wantLevel: toast.LevelSuccess,
		},
		{
			name:      "cancellation with server message",
			typ:       models.MessageBookingStatusChange,
			payload:   models.BookingPayload{BookingID: "b1", Status: models.BookingCancelled, Message: "Host cancelled"},
			wantPatch: models.Patch{"status": "cancelled"},
			wantToast: "Host cancelled",
			wantLevel: toast.LevelWarning,
		},
		{
			name:      "field changes without status",
			typ:       models.MessageBookingUpdate,
			payload:   models.BookingPayload{BookingID: "b1", Changes: models.Patch{"guests": float64(3)}},
			wantPatch: models.Patch{"guests": float64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.router.HandleEnvelope(envelope(t, tt.typ, tt.payload))

			assert.Equal(t, []events.Event{
				events.EntityPatched{Kind: models.KindBooking, ID: "b1", Patch: tt.wantPatch},
			}, h.events.all())

			last, ok := h.toasts.Last()
			if tt.wantToast == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantToast, last.Message)
			assert.Equal(t, tt.wantLevel, last.Level)
		})
	}
}

func TestEntityUpdatesInvalidate(t *testing.T) {
	h := newHarness()
	h.favs.Add(models.KindPOI, "poi9")

	h.router.HandleEnvelope(envelope(t, models.MessagePropertyUpdate, models.EntityUpdatePayload{PropertyID: "p1"}))
	assert.Empty(t, h.toasts.Toasts(), "not a favorite")

	h.router.HandleEnvelope(envelope(t, models.MessagePOIUpdate, models.EntityUpdatePayload{ID: "poi9", Name: "Old Harbour"}))
	h.router.HandleEnvelope(envelope(t, models.MessageExperienceUpdate, models.EntityUpdatePayload{ExperienceID: "e1"}))

	assert.Equal(t, []events.Event{
		events.EntityInvalidated{Kind: models.KindProperty, ID: "p1"},
		events.EntityInvalidated{Kind: models.KindPOI, ID: "poi9"},
		events.EntityInvalidated{Kind: models.KindExperience, ID: "e1"},
	}, h.events.all())

	toasts := h.toasts.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "Saved place updated", toasts[0].Title)
	assert.Equal(t, "Old Harbour has new details", toasts[0].Message)
}

func TestToastOnlyMessages(t *testing.T) {
	h := newHarness()

	h.router.HandleEnvelope(envelope(t, models.MessageUserUpdate, models.UserUpdatePayload{UserID: "u1"}))
	h.router.HandleEnvelope(envelope(t, models.MessageSystem, models.SystemPayload{
		Message: "Maintenance tonight", Level: "warning",
	}))
	h.router.HandleEnvelope(envelope(t, models.MessageSystem, models.SystemPayload{Message: "Hi", Level: "shout"}))
	h.router.HandleEnvelope(envelope(t, models.MessageSystem, models.SystemPayload{Action: "ack"}))
	h.router.HandleEnvelope(envelope(t, models.MessageHeartbeat, nil))

	assert.Empty(t, h.events.all())

	toasts := h.toasts.Toasts()
	require.Len(t, toasts, 3)
	assert.Equal(t, "Account updated", toasts[0].Title)
	assert.Equal(t, toast.LevelWarning, toasts[1].Level)
	assert.Equal(t, "Announcement", toasts[1].Title)
	assert.Equal(t, toast.LevelInfo, toasts[2].Level)
}

func TestUnknownAndMalformedMessages(t *testing.T) {
	h := newHarness()
	bookings := store.New(store.Config[models.Booking]{Kind: models.KindBooking, TTL: time.Minute})
	bookings.Put(models.Booking{ID: "b1", Status: models.BookingPending})
	bookings.Bind(h.bus)

	assert.NotPanics(t, func() {
		h.router.HandleEnvelope(models.Envelope{Type: "TELEPORT", Payload: []byte(`{"bookingId":"b1"}`)})
		h.router.HandleEnvelope(models.Envelope{Type: models.MessageBookingUpdate, Payload: []byte(`[1,2]`)})
		h.router.HandleEnvelope(envelope(t, models.MessageBookingUpdate, models.BookingPayload{Status: models.BookingCancelled}))
		h.router.HandleEnvelope(envelope(t, models.MessagePropertyUpdate, models.EntityUpdatePayload{}))
	})

	assert.Empty(t, h.events.all())
	assert.Empty(t, h.toasts.Toasts())

	b, ok := bookings.Get("b1")
	require.True(t, ok)
	assert.Equal(t, models.BookingPending, b.Status)
	_, pending := bookings.Pending("b1")
	assert.False(t, pending)
}

func TestHandlerPanicIsContained(t *testing.T) {
	h := newHarness()
	h.router.Handle("BOOM", func(models.Envelope) error { panic("boom") })

	assert.NotPanics(t, func() {
		h.router.HandleEnvelope(models.Envelope{Type: "BOOM"})
	})
}

func TestHandleOverridesAndRemoves(t *testing.T) {
	h := newHarness()
	var seen []models.MessageType
	h.router.Handle(models.MessageHeartbeat, func(env models.Envelope) error {
		seen = append(seen, env.Type)
		return nil
	})
	h.router.HandleEnvelope(envelope(t, models.MessageHeartbeat, nil))
	assert.Equal(t, []models.MessageType{models.MessageHeartbeat}, seen)

	h.router.Handle(models.MessageUserUpdate, nil)
	h.router.HandleEnvelope(envelope(t, models.MessageUserUpdate, models.UserUpdatePayload{}))
	assert.Empty(t, h.toasts.Toasts())
}

func TestPushedBookingReachesStore(t *testing.T) {
	h := newHarness()
	bookings := store.New(store.Config[models.Booking]{Kind: models.KindBooking, TTL: time.Minute})
	bookings.Put(models.Booking{ID: "b1", Status: models.BookingPending, Guests: 2})
	bookings.Bind(h.bus)

	h.router.HandleEnvelope(envelope(t, models.MessageBookingStatusChange, models.BookingPayload{
		BookingID: "b1", Status: models.BookingConfirmed,
	}))

	b, ok := bookings.Get("b1")
	require.True(t, ok)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, 2, b.Guests)
	p, ok := bookings.Pending("b1")
	require.True(t, ok)
	assert.Equal(t, models.Patch{"status": "confirmed"}, p.Patch)
}
