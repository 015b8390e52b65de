package router

import (
	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/toast"
)

type statusNotice struct {
	level   toast.Level
	message string
}

var bookingNotices = map[models.BookingStatus]statusNotice{
	models.BookingPending:   {toast.LevelInfo, "Your booking is awaiting confirmation"},
	models.BookingConfirmed: {toast.LevelSuccess, "Your booking is confirmed"},
	models.BookingCheckedIn: {toast.LevelSuccess, "You are checked in, enjoy your stay"},
	models.BookingCompleted: {toast.LevelInfo, "Your stay is complete"},
	models.BookingCancelled: {toast.LevelWarning, "Your booking was cancelled"},
	models.BookingRefunded:  {toast.LevelInfo, "Your refund has been issued"},
}

var kindTitles = map[models.Kind]string{
	models.KindProperty:   "Saved property updated",
	models.KindPOI:        "Saved place updated",
	models.KindExperience: "Saved experience updated",
}

func (r *Router) toast(t toast.Toast) {
	r.publish(events.ToastRequested{Toast: t})
}

func (r *Router) notificationNew(env models.Envelope) error {
	var n models.Notification
	if err := decode(env, &n); err != nil {
		return err
	}
	if n.ID == "" {
		return errMissingID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = env.Timestamp
	}

	r.publish(events.NotificationReceived{Notification: n})

	if n.Urgent() {
		level := toast.LevelInfo
		if n.Priority == models.PriorityUrgent {
			level = toast.LevelWarning
		}
		r.toast(toast.New(level, n.Title, n.Message))
	}
	return nil
}

func (r *Router) notificationUpdate(env models.Envelope) error {
	var p models.NotificationUpdatePayload
	if err := decode(env, &p); err != nil {
		return err
	}
	id := p.EntityID()
	if id == "" {
		return errMissingID
	}
	r.publish(events.NotificationChanged{ID: id, Patch: p.Patch()})
	return nil
}

func (r *Router) bookingUpdate(env models.Envelope) error {
	var p models.BookingPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.BookingID == "" {
		return errMissingID
	}

	patch := p.Patch()
	if len(patch) > 0 {
		r.publish(events.EntityPatched{Kind: models.KindBooking, ID: p.BookingID, Patch: patch})
	}

	notice, ok := bookingNotices[p.Status]
	switch {
	case ok:
		if p.Message != "" {
			notice.message = p.Message
		}
		r.toast(toast.New(notice.level, "Booking update", notice.message))
	case p.Message != "":
		r.toast(toast.New(toast.LevelInfo, "Booking update", p.Message))
	}
	return nil
}

func (r *Router) entityUpdate(kind models.Kind) HandlerFunc {
	return func(env models.Envelope) error {
		var p models.EntityUpdatePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		id := p.EntityID()
		if id == "" {
			return errMissingID
		}

		r.publish(events.EntityInvalidated{Kind: kind, ID: id})

		if r.favorites.Contains(kind, id) {
			msg := p.Message
			if msg == "" && p.Name != "" {
				msg = p.Name + " has new details"
			}
			r.toast(toast.New(toast.LevelInfo, kindTitles[kind], msg))
		}
		return nil
	}
}

func (r *Router) userUpdate(env models.Envelope) error {
	var p models.UserUpdatePayload
	if err := decode(env, &p); err != nil {
		return err
	}
	msg := p.Message
	if msg == "" {
		msg = "Your account details changed"
	}
	r.toast(toast.New(toast.LevelInfo, "Account updated", msg))
	return nil
}

func (r *Router) systemMessage(env models.Envelope) error {
	var p models.SystemPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.Message == "" {
		r.logger.Debug("router: empty system message", "action", p.Action)
		return nil
	}

	level := toast.Level(p.Level)
	switch level {
	case toast.LevelSuccess, toast.LevelInfo, toast.LevelWarning, toast.LevelError:
	default:
		level = toast.LevelInfo
	}
	title := p.Title
	if title == "" {
		title = "Announcement"
	}
	r.toast(toast.New(level, title, p.Message))
	return nil
}
