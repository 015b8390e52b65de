// Package router turns inbound push envelopes into domain events.
//
// A Router is the connection.EnvelopeHandler of a Manager. Each message type
// maps to a HandlerFunc that decodes the payload and publishes events on the
// bus; stores and toast surfaces subscribe to those events independently.
// Envelopes are handled synchronously, in the order they are delivered.
package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/favorites"
	"github.com/tripnest/tripsync/pkg/logger"
	"github.com/tripnest/tripsync/pkg/models"
)

var errMissingID = errors.New("payload has no entity id")

// HandlerFunc handles one envelope. A returned error is logged; it never
// reaches the connection.
type HandlerFunc func(env models.Envelope) error

type Option func(r *Router)

func WithLogger(l logger.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithFavorites enables toasts for updates to favorited entities.
func WithFavorites(f *favorites.Set) Option {
	return func(r *Router) { r.favorites = f }
}

type Router struct {
	bus       *events.Bus
	favorites *favorites.Set
	logger    logger.Logger

	mu       sync.RWMutex
	handlers map[models.MessageType]HandlerFunc
}

// New returns a Router publishing on bus with the default handlers
// registered.
func New(bus *events.Bus, opts ...Option) *Router {
	r := &Router{
		bus:       bus,
		favorites: &favorites.Set{},
		logger:    logger.Discard(),
		handlers:  make(map[models.MessageType]HandlerFunc),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Handle(models.MessageNotificationNew, r.notificationNew)
	r.Handle(models.MessageNotificationUpdate, r.notificationUpdate)
	r.Handle(models.MessageBookingUpdate, r.bookingUpdate)
	r.Handle(models.MessageBookingStatusChange, r.bookingUpdate)
	r.Handle(models.MessagePropertyUpdate, r.entityUpdate(models.KindProperty))
	r.Handle(models.MessagePOIUpdate, r.entityUpdate(models.KindPOI))
	r.Handle(models.MessageExperienceUpdate, r.entityUpdate(models.KindExperience))
	r.Handle(models.MessageUserUpdate, r.userUpdate)
	r.Handle(models.MessageSystem, r.systemMessage)
	r.Handle(models.MessageHeartbeat, r.heartbeat)
	return r
}

// Handle registers fn for typ, replacing any previous handler. A nil fn
// removes the handler.
func (r *Router) Handle(typ models.MessageType, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.handlers, typ)
		return
	}
	r.handlers[typ] = fn
}

// HandleEnvelope dispatches env. It never panics.
func (r *Router) HandleEnvelope(env models.Envelope) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("router: handler panicked", "type", env.Type, "panic", p)
		}
	}()

	r.mu.RLock()
	fn, ok := r.handlers[env.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("router: message discarded",
			"type", env.Type,
			"error", fmt.Errorf("%w: %q", constants.ErrUnknownMessageType, env.Type))
		return
	}
	if err := fn(env); err != nil {
		r.logger.Warn("router: message dropped", "type", env.Type, "error", err)
	}
}

func (r *Router) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

func decode(env models.Envelope, dst any) error {
	if err := env.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s: %w", constants.ErrMessageParse, env.Type, err)
	}
	return nil
}

func (r *Router) heartbeat(env models.Envelope) error {
	r.logger.Debug("router: heartbeat", "timestamp", env.Timestamp)
	return nil
}
