// Package events carries domain events from the message router to the
// stores and toast surfaces that care about them.
package events

import (
	"sync"

	"github.com/tripnest/tripsync/pkg/logger"
)

// Event is any value published on a Bus.
type Event any

type Handler func(Event)

// Bus delivers every published event to all subscribers synchronously, in
// subscription order, on the publishing goroutine.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
	logger   logger.Logger
}

type subscription struct {
	id int
	fn Handler
}

func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.Discard()
	}
	return &Bus{logger: log}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.handlers {
		if s.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish calls each subscriber in turn. A panicking subscriber is logged
// and skipped so the remaining subscribers still see the event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]subscription, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, s := range handlers {
		b.deliver(s.fn, ev)
	}
}

func (b *Bus) deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", ev, "panic", r)
		}
	}()
	fn(ev)
}

// On subscribes fn to events of type T only.
func On[T any](b *Bus, fn func(T)) (unsubscribe func()) {
	return b.Subscribe(func(ev Event) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}
