package tripsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tripnest/tripsync/internal/clock"
	"github.com/tripnest/tripsync/pkg/cache"
	"github.com/tripnest/tripsync/pkg/connection"
	"github.com/tripnest/tripsync/pkg/connection/gorillaws"
	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/favorites"
	"github.com/tripnest/tripsync/pkg/logger"
	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/rest"
	"github.com/tripnest/tripsync/pkg/router"
	"github.com/tripnest/tripsync/pkg/snapshot"
	"github.com/tripnest/tripsync/pkg/store"
	"github.com/tripnest/tripsync/pkg/toast"
)

// Config holds the endpoints and tuning knobs of a Client.
type Config struct {
	// WSURL is the push endpoint, e.g. "wss://push.example.com/ws".
	WSURL string
	// APIURL is the REST base URL, e.g. "https://api.example.com/v1".
	APIURL string

	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	HTTPTimeout          time.Duration

	TTLs cache.TTLTable
}

func NewConfig(wsURL, apiURL string) *Config {
	return &Config{
		WSURL:                wsURL,
		APIURL:               apiURL,
		HeartbeatInterval:    constants.DefaultHeartbeatInterval,
		ReconnectBaseDelay:   constants.DefaultReconnectBaseDelay,
		MaxReconnectAttempts: constants.DefaultMaxReconnectAttempts,
		HTTPTimeout:          constants.DefaultHTTPTimeout,
		TTLs:                 cache.DefaultTTLs(),
	}
}

// ConfigFromEnv reads TRIPSYNC_WS_URL and TRIPSYNC_API_URL, falling back to
// local development endpoints.
func ConfigFromEnv() *Config {
	return NewConfig(
		GetEnvOrDefault("TRIPSYNC_WS_URL", "ws://localhost:8080/ws"),
		GetEnvOrDefault("TRIPSYNC_API_URL", "http://localhost:8080/api"),
	)
}

func (c *Config) connection() *connection.Config {
	cfg := connection.NewConfig(c.WSURL)
	cfg.HeartbeatInterval = c.HeartbeatInterval
	cfg.ReconnectBaseDelay = c.ReconnectBaseDelay
	cfg.MaxReconnectAttempts = c.MaxReconnectAttempts
	return cfg
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api url: %w", constants.ErrNoBaseURL)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url %q: %w", c.APIURL, err)
	}
	if u.Scheme != constants.HTTPScheme && u.Scheme != constants.HTTPSecureScheme {
		return fmt.Errorf("invalid api url %q: scheme must be %s or %s", c.APIURL, constants.HTTPScheme, constants.HTTPSecureScheme)
	}
	return c.connection().Validate()
}

type Option func(c *Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithDialer replaces the default gorilla/websocket transport.
func WithDialer(d connection.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithToasts shows every toast on s.
func WithToasts(s toast.Surface) Option {
	return func(c *Client) { c.surface = s }
}

func WithSnapshots(b snapshot.Backend) Option {
	return func(c *Client) { c.snapshots = b }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithFavorites(items ...favorites.Item) Option {
	return func(c *Client) { c.initialFavorites = items }
}

// Client wires the stores, the push connection and the REST API together.
// Build one with New, call Init, then Connect after login. Dispose on
// logout or shutdown.
type Client struct {
	Bookings      *store.Store[models.Booking]
	Notifications *store.NotificationStore
	Properties    *store.Store[models.Property]
	POIs          *store.Store[models.POI]
	Experiences   *store.Store[models.Experience]
	Favorites     *favorites.Set

	Bus    *events.Bus
	Router *router.Router
	Conn   *connection.Manager
	API    *rest.Client

	bookingAPI      *rest.Bookings
	notificationAPI *rest.Notifications

	cfg              Config
	logger           logger.Logger
	clock            clock.Clock
	dialer           connection.Dialer
	surface          toast.Surface
	snapshots        snapshot.Backend
	httpClient       *http.Client
	initialFavorites []favorites.Item

	mu       sync.Mutex
	unbind   []func()
	userID   string
	disposed bool
}

// New builds a Client. Nothing touches the network until Connect or a
// store operation.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TTLs == nil {
		cfg.TTLs = cache.DefaultTTLs()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.Discard(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = gorillaws.New(gorillaws.WithLogger(c.logger))
	}

	c.API = rest.New(cfg.APIURL)
	if c.httpClient != nil {
		c.API.SetHTTPClient(c.httpClient)
	} else if cfg.HTTPTimeout > 0 {
		c.API.SetTimeout(cfg.HTTPTimeout)
	}
	c.bookingAPI = rest.NewBookings(c.API)
	c.notificationAPI = rest.NewNotifications(c.API)

	c.Bookings = store.New(store.Config[models.Booking]{
		Kind:    models.KindBooking,
		TTL:     cfg.TTLs.For(string(models.KindBooking)),
		ListTTL: cfg.TTLs.For(cache.ResourceBookingList),
		Source:  c.bookingAPI,
		Clock:   c.clock,
		Logger:  c.logger,
	})
	c.Notifications = store.NewNotificationStore(store.Config[models.Notification]{
		TTL:    cfg.TTLs.For(string(models.KindNotification)),
		Source: c.notificationAPI,
		Clock:  c.clock,
		Logger: c.logger,
	})
	c.Properties = store.New(store.Config[models.Property]{
		Kind:    models.KindProperty,
		TTL:     cfg.TTLs.For(string(models.KindProperty)),
		ListTTL: cfg.TTLs.For(cache.ResourceSearch),
		Source:  rest.NewResource[models.Property](c.API, "/properties"),
		Clock:   c.clock,
		Logger:  c.logger,
	})
	c.POIs = store.New(store.Config[models.POI]{
		Kind:   models.KindPOI,
		TTL:    cfg.TTLs.For(string(models.KindPOI)),
		Source: rest.NewResource[models.POI](c.API, "/pois"),
		Clock:  c.clock,
		Logger: c.logger,
	})
	c.Experiences = store.New(store.Config[models.Experience]{
		Kind:   models.KindExperience,
		TTL:    cfg.TTLs.For(string(models.KindExperience)),
		Source: rest.NewResource[models.Experience](c.API, "/experiences"),
		Clock:  c.clock,
		Logger: c.logger,
	})
	c.Favorites = favorites.New(c.initialFavorites...)

	c.Bus = events.NewBus(c.logger)
	c.Router = router.New(c.Bus, router.WithLogger(c.logger), router.WithFavorites(c.Favorites))
	c.Conn = connection.NewManager(*cfg.connection(), c.dialer, c.Router,
		connection.WithClock(c.clock),
		connection.WithLogger(c.logger),
		connection.WithBus(c.Bus),
	)
	return c, nil
}

// Init subscribes the stores and the toast surface to the bus and readies
// the connection manager.
func (c *Client) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return constants.ErrDisposed
	}
	if err := c.Conn.Init(); err != nil {
		return err
	}
	if len(c.unbind) > 0 {
		return nil
	}
	c.unbind = append(c.unbind,
		c.Bookings.Bind(c.Bus),
		c.Notifications.Bind(c.Bus),
		c.Properties.Bind(c.Bus),
		c.POIs.Bind(c.Bus),
		c.Experiences.Bind(c.Bus),
	)
	if c.surface != nil {
		c.unbind = append(c.unbind, events.ShowToasts(c.Bus, c.surface))
	}
	return nil
}

// Dispose disconnects and detaches everything from the bus. The cached data
// stays readable.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	unbind := c.unbind
	c.unbind = nil
	c.mu.Unlock()

	c.Conn.Dispose()
	for _, fn := range unbind {
		fn()
	}
}

// Connect authenticates REST calls with session.Token and opens the push
// connection for session.UserID.
func (c *Client) Connect(ctx context.Context, session connection.Session) error {
	c.mu.Lock()
	c.userID = session.UserID
	c.mu.Unlock()

	c.API.SetToken(session.Token)
	return c.Conn.Connect(ctx, session)
}

func (c *Client) Disconnect() {
	c.Conn.Disconnect()
}

// Config returns the configuration the Client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) Status() connection.Status {
	return c.Conn.Status()
}

// Logout disconnects, forgets the token and clears every store.
func (c *Client) Logout() {
	c.Conn.Disconnect()
	c.API.SetToken("")
	c.ClearCache()

	c.mu.Lock()
	c.userID = ""
	c.mu.Unlock()
}

// ClearCache drops every entity and cache entry. The next read of anything
// goes to the network.
func (c *Client) ClearCache() {
	c.Bookings.Clear()
	c.Notifications.Clear()
	c.Properties.Clear()
	c.POIs.Clear()
	c.Experiences.Clear()
}

// CancelBooking shows the booking as cancelled immediately and asks the
// server to cancel it. The change is reverted if the server refuses.
func (c *Client) CancelBooking(ctx context.Context, id, reason string) (models.Booking, error) {
	patch := models.Patch{"status": string(models.BookingCancelled)}
	if reason != "" {
		patch["cancellationReason"] = reason
	}
	b, err := c.Bookings.Mutate(ctx, id, patch, c.bookingAPI.Cancel(id, reason))
	if err != nil {
		c.notify(toast.LevelError, "Cancellation failed", err.Error())
		return b, err
	}
	c.notify(toast.LevelSuccess, "Booking cancelled", "")
	return b, nil
}

// MarkNotificationRead flags id as read locally and on the server.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) (models.Notification, error) {
	return c.Notifications.MarkRead(ctx, id, c.notificationAPI.MarkRead(id))
}

// RefreshUnreadCount replaces the local unread counter with the server's.
func (c *Client) RefreshUnreadCount(ctx context.Context) (int, error) {
	n, err := c.notificationAPI.UnreadCount(ctx)
	if err != nil {
		return c.Notifications.UnreadCount(), fmt.Errorf("%w: unread count: %w", constants.ErrFetch, err)
	}
	c.Notifications.SetUnreadCount(n)
	return n, nil
}

// ToggleFavorite flips a wishlist entry and returns whether it is now saved.
func (c *Client) ToggleFavorite(kind models.Kind, id string) bool {
	return c.Favorites.Toggle(kind, id)
}

func (c *Client) notify(level toast.Level, title, message string) {
	c.Bus.Publish(events.ToastRequested{Toast: toast.New(level, title, message)})
}

// Snapshot captures the state of every store.
func (c *Client) Snapshot() *snapshot.Document {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	return &snapshot.Document{
		Version:       snapshot.Version,
		SavedAt:       c.clock.Now(),
		UserID:        userID,
		Bookings:      c.Bookings.Export(),
		Notifications: c.Notifications.Export(),
		UnreadCount:   c.Notifications.UnreadCount(),
		Properties:    c.Properties.Export(),
		POIs:          c.POIs.Export(),
		Experiences:   c.Experiences.Export(),
		Favorites:     c.Favorites.List(),
	}
}

// Restore merges doc into the stores. Data already loaded wins over the
// snapshot.
func (c *Client) Restore(doc *snapshot.Document) {
	c.Bookings.Import(doc.Bookings)
	c.Notifications.Import(doc.Notifications)
	c.Properties.Import(doc.Properties)
	c.POIs.Import(doc.POIs)
	c.Experiences.Import(doc.Experiences)
	for _, it := range doc.Favorites {
		c.Favorites.Add(it.Kind, it.ID)
	}
	c.Notifications.SetUnreadCount(max(c.Notifications.UnreadCount(), doc.UnreadCount))
}

var ErrNoSnapshotBackend = errors.New("tripsync: no snapshot backend configured")

func (c *Client) SaveSnapshot(ctx context.Context) error {
	if c.snapshots == nil {
		return ErrNoSnapshotBackend
	}
	return c.snapshots.Save(ctx, c.Snapshot())
}

// LoadSnapshot restores the last saved snapshot. It reports false when
// nothing was saved, or when the snapshot belongs to another user.
func (c *Client) LoadSnapshot(ctx context.Context) (bool, error) {
	if c.snapshots == nil {
		return false, ErrNoSnapshotBackend
	}
	doc, err := c.snapshots.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID != "" && doc.UserID != "" && doc.UserID != userID {
		c.logger.Info("tripsync: ignoring snapshot of another user", "user", doc.UserID)
		return false, nil
	}

	c.Restore(doc)
	return true, nil
}
