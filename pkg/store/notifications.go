package store

import (
	"context"
	"sync"

	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/models"
)

// NotificationStore adds an unread counter to the notification store. The
// counter follows read-state transitions of the view, so pushed and local
// changes adjust it the same way.
type NotificationStore struct {
	*Store[models.Notification]

	mu     sync.Mutex
	unread int
}

func NewNotificationStore(cfg Config[models.Notification]) *NotificationStore {
	cfg.Kind = models.KindNotification
	return &NotificationStore{Store: New(cfg)}
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// SetUnreadCount replaces the counter with a server-reported total.
func (s *NotificationStore) SetUnreadCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = max(n, 0)
}

func (s *NotificationStore) readState(id string) (read, known bool) {
	n, ok := s.Get(id)
	return n.Read, ok
}

func (s *NotificationStore) adjust(before, after, knownBefore, knownAfter bool) {
	switch {
	case !knownBefore && knownAfter && !after:
		s.unread++
	case knownBefore && knownAfter && before && !after:
		s.unread++
	case knownBefore && knownAfter && !before && after:
		s.unread--
	}
	s.unread = max(s.unread, 0)
}

// Add puts n at the head of the list.
func (s *NotificationStore) Add(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, known := s.readState(n.ID)
	s.Prepend(n)
	after, _ := s.readState(n.ID)
	s.adjust(before, after, known, true)
}

// Merge applies a pushed partial update to notification id.
func (s *NotificationStore) Merge(id string, patch models.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, knownBefore := s.readState(id)
	s.MergePending(id, patch)
	after, knownAfter := s.readState(id)
	s.adjust(before, after, knownBefore, knownAfter)
}

// MarkRead flags id as read optimistically and runs call. The counter moves
// together with the overlay, and moves back only if the rollback changes the
// read state of the view.
func (s *NotificationStore) MarkRead(ctx context.Context, id string, call CallFunc[models.Notification]) (models.Notification, error) {
	s.mu.Lock()
	before, knownBefore := s.readState(id)
	m := s.start(id, models.Patch{"read": true})
	after, knownAfter := s.readState(id)
	s.adjust(before, after, knownBefore, knownAfter)
	s.mu.Unlock()

	n, err := s.run(ctx, id, call)

	s.mu.Lock()
	defer s.mu.Unlock()
	before, knownBefore = s.readState(id)
	n, err = s.end(m, n, err)
	after, knownAfter = s.readState(id)
	s.adjust(before, after, knownBefore, knownAfter)
	return n, err
}

// Recount sets the counter from the listed notifications.
func (s *NotificationStore) Recount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, item := range s.All() {
		if !item.Read {
			n++
		}
	}
	s.unread = n
	return n
}

func (s *NotificationStore) Clear() {
	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()
	s.Store.Clear()
}

// Bind subscribes to new and changed notifications as well as the generic
// patch and invalidation events.
func (s *NotificationStore) Bind(bus *events.Bus) (unbind func()) {
	unbindStore := s.Store.Bind(bus)
	unreceived := events.On(bus, func(ev events.NotificationReceived) {
		s.Add(ev.Notification)
	})
	unchanged := events.On(bus, func(ev events.NotificationChanged) {
		s.Merge(ev.ID, ev.Patch)
	})
	return func() {
		unbindStore()
		unreceived()
		unchanged()
	}
}
