package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tripnest/tripsync/internal/clock"
	"github.com/tripnest/tripsync/internal/codec"
	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/logger"
	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/toast"
)

type Option func(m *Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBus makes the Manager publish its toasts as events.ToastRequested.
func WithBus(b *events.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithRetryer replaces the backoff derived from Config.
func WithRetryer(r Retryer) Option {
	return func(m *Manager) { m.retryer = r }
}

func WithCodec(c codec.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// Manager owns the push socket. Create one with NewManager, call Init, then
// Connect. Dispose releases everything; a disposed Manager cannot be reused.
type Manager struct {
	cfg     Config
	dialer  Dialer
	handler EnvelopeHandler
	clock   clock.Clock
	logger  logger.Logger
	bus     *events.Bus
	codec   codec.Codec
	retryer Retryer

	// mu guards everything below. It is never held while dialing, writing
	// or calling the handler.
	mu            sync.Mutex
	state         State
	attempts      int
	exhausted     bool
	channels      map[string]struct{}
	resubscribe   []string
	lastHeartbeat time.Time
	session       Session
	socket        Socket

	// generation identifies the current socket. Goroutines and timers
	// started for an older generation do nothing.
	generation uint64

	heartbeatTimer *clock.Timer
	reconnectTimer *clock.Timer
	initialized    bool
	disposed       bool

	// writeMu serializes frames on the socket.
	writeMu sync.Mutex
}

func NewManager(cfg Config, dialer Dialer, handler EnvelopeHandler, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		dialer:   dialer,
		handler:  handler,
		clock:    clock.Real(),
		logger:   logger.Discard(),
		codec:    codec.JSON{},
		channels: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.retryer == nil {
		m.retryer = NewExponentialBackoffRetryer(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts)
	}
	return m
}

// Init validates the configuration and readies the Manager for Connect.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return constants.ErrDisposed
	}
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	if m.dialer == nil {
		return errors.New("connection: no dialer")
	}
	m.initialized = true
	return nil
}

// Dispose disconnects and makes every later call fail with ErrDisposed.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.mu.Unlock()

	m.Disconnect()
	m.logger.Debug("connection: disposed")
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		State:              m.state,
		ReconnectAttempts:  m.attempts,
		SubscribedChannels: sortedChannels(m.channels),
		LastHeartbeatAt:    m.lastHeartbeat,
		Exhausted:          m.exhausted,
	}
}

func (m *Manager) IsConnected() bool {
	return m.Status().State == StateConnected
}

func (m *Manager) transitionLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("connection: state transitioned", "from", m.state, "to", s)
	m.state = s
}

// detachLocked retires the current socket and its timers. The caller closes
// the returned socket after releasing mu.
func (m *Manager) detachLocked() Socket {
	m.generation++
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	sock := m.socket
	m.socket = nil
	return sock
}

// Connect opens a socket for session, closing any existing one first.
// A failed dial is treated like an abnormal close and schedules a retry.
func (m *Manager) Connect(ctx context.Context, session Session) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return constants.ErrDisposed
	}
	if !m.initialized {
		m.mu.Unlock()
		return fmt.Errorf("%w: manager not initialized", constants.ErrConnection)
	}
	if session.UserID == "" {
		m.mu.Unlock()
		return constants.ErrNoUserID
	}
	prev := m.detachLocked()
	if session.UserID == m.session.UserID {
		m.resubscribe = appendMissing(m.resubscribe, sortedChannels(m.channels))
	} else {
		m.resubscribe = nil
	}
	m.session = session
	m.channels = make(map[string]struct{})
	m.transitionLocked(StateConnecting)
	gen := m.generation
	m.mu.Unlock()

	if prev != nil {
		m.closeSocket(prev, "reconnecting")
	}

	return m.dial(ctx, gen, session)
}

// Retry resets the attempt counter and connects again with the last session.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	m.attempts = 0
	m.exhausted = false
	session := m.session
	m.mu.Unlock()

	return m.Connect(ctx, session)
}

// Disconnect closes the socket with a normal close code. Timers are stopped
// before it returns and no reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.detachLocked()
	m.channels = make(map[string]struct{})
	m.resubscribe = nil
	m.attempts = 0
	m.exhausted = false
	m.transitionLocked(StateDisconnected)
	m.mu.Unlock()

	if prev != nil {
		m.closeSocket(prev, "client disconnect")
	}
}

func (m *Manager) closeSocket(sock Socket, reason string) {
	if err := sock.Close(constants.CloseNormal, reason); err != nil {
		m.logger.Debug("connection: close failed", "error", err)
	}
}

func (m *Manager) dial(ctx context.Context, gen uint64, session Session) error {
	endpoint, err := m.cfg.endpoint(session.Token)
	if err != nil {
		return fmt.Errorf("%w: %w", constants.ErrConnection, err)
	}

	sock, err := m.dialer.Dial(ctx, endpoint)
	if err != nil {
		m.logger.Error("connection: dial failed", "error", err)
		m.handleClose(gen, &CloseError{Code: constants.CloseAbnormal, Reason: err.Error()})
		return fmt.Errorf("%w: %w", constants.ErrConnection, err)
	}

	m.mu.Lock()
	if gen != m.generation || m.disposed {
		m.mu.Unlock()
		m.closeSocket(sock, "superseded")
		return nil
	}
	m.socket = sock
	m.attempts = 0
	m.exhausted = false
	m.transitionLocked(StateConnected)
	m.scheduleHeartbeatLocked(gen)
	channels := appendMissing(UserChannels(session.UserID), m.resubscribe)
	m.resubscribe = nil
	m.mu.Unlock()

	m.logger.Info("connection: connected", "user", session.UserID)
	go m.readLoop(gen, sock)

	m.publishToast(toast.New(toast.LevelSuccess, "Connected", "Live updates are on"))

	for _, c := range channels {
		if err := m.Subscribe(ctx, c); err != nil {
			m.logger.Warn("connection: subscribe failed", "channel", c, "error", err)
		}
	}
	return nil
}

func appendMissing(dst, more []string) []string {
	for _, c := range more {
		found := false
		for _, d := range dst {
			if d == c {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, c)
		}
	}
	return dst
}

// handleClose is the single place that reacts to a lost socket, whether it
// closed while open or never opened.
func (m *Manager) handleClose(gen uint64, cause error) {
	code := CloseCode(cause)

	var prev Socket
	defer func() {
		if prev != nil {
			m.closeSocket(prev, "connection lost")
		}
	}()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	prev = m.detachLocked()
	m.resubscribe = appendMissing(m.resubscribe, sortedChannels(m.channels))
	m.channels = make(map[string]struct{})
	m.transitionLocked(StateDisconnected)

	if code == constants.CloseNormal || m.disposed {
		m.mu.Unlock()
		m.logger.Info("connection: closed", "code", code)
		return
	}

	delay, ok := m.retryer.NextDelay(m.attempts, cause)
	if !ok {
		m.exhausted = true
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Error("connection: giving up",
			"attempts", attempts,
			"error", fmt.Errorf("%w: %w", constants.ErrReconnectExhausted, cause))
		t := toast.New(toast.LevelError, "Connection lost", "Unable to reach the server. Live updates are paused.")
		t.Persistent = true
		t.Action = &toast.Action{
			Label: "Retry",
			Do: func() {
				if err := m.Retry(context.Background()); err != nil {
					m.logger.Warn("connection: manual retry failed", "error", err)
				}
			},
		}
		m.publishToast(t)
		return
	}

	m.attempts++
	attempt := m.attempts
	next := m.generation
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnect(next) })
	m.mu.Unlock()

	m.logger.Warn("connection: lost, reconnecting",
		"code", code,
		"attempt", attempt,
		"delay", delay)
	m.publishToast(toast.New(toast.LevelWarning, "Reconnecting",
		fmt.Sprintf("Connection lost, reconnecting (attempt %d/%d)", attempt, m.cfg.MaxReconnectAttempts)))
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.disposed {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.transitionLocked(StateConnecting)
	session := m.session
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout())
	defer cancel()
	if err := m.dial(ctx, gen, session); err != nil {
		m.logger.Debug("connection: reconnect attempt failed", "error", err)
	}
}

func (m *Manager) dialTimeout() time.Duration {
	if m.cfg.WriteTimeout > 0 {
		return m.cfg.WriteTimeout
	}
	return constants.DefaultWSTimeout
}

func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.Read(context.Background())
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation
}

func (m *Manager) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("connection: handler panicked", "panic", r)
		}
	}()

	var env models.Envelope
	if err := m.codec.Unmarshal(data, &env); err != nil {
		m.logger.Warn("connection: dropping frame",
			"error", fmt.Errorf("%w: %w", constants.ErrMessageParse, err),
			"size", len(data))
		return
	}
	if env.Type == "" {
		m.logger.Warn("connection: dropping frame",
			"error", fmt.Errorf("%w: missing type", constants.ErrMessageParse))
		return
	}
	if m.handler != nil {
		m.handler.HandleEnvelope(env)
	}
}

func (m *Manager) scheduleHeartbeatLocked(gen uint64) {
	m.heartbeatTimer = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() { m.heartbeat(gen) })
}

// heartbeat sends one HEARTBEAT and schedules the next. Send failures are
// logged only; a dead socket is detected by the read loop.
func (m *Manager) heartbeat(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateConnected || m.socket == nil {
		m.mu.Unlock()
		return
	}
	sock := m.socket
	m.scheduleHeartbeatLocked(gen)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout())
	defer cancel()
	if err := m.send(ctx, sock, models.MessageHeartbeat, nil); err != nil {
		m.logger.Debug("connection: heartbeat failed", "error", err)
		return
	}

	m.mu.Lock()
	if gen == m.generation {
		m.lastHeartbeat = m.clock.Now()
	}
	m.mu.Unlock()
}

// Subscribe asks the server for messages on channel. Subscribing to a
// channel already subscribed on this connection sends nothing.
func (m *Manager) Subscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	if _, ok := m.channels[channel]; ok {
		m.mu.Unlock()
		return nil
	}
	if m.state != StateConnected || m.socket == nil {
		m.mu.Unlock()
		return constants.ErrNotConnected
	}
	m.channels[channel] = struct{}{}
	sock := m.socket
	gen := m.generation
	m.mu.Unlock()

	err := m.send(ctx, sock, models.MessageSystem, models.SystemPayload{
		Action:  models.ActionSubscribe,
		Channel: channel,
	})
	if err != nil {
		m.mu.Lock()
		if gen == m.generation {
			delete(m.channels, channel)
		}
		m.mu.Unlock()
		return err
	}
	m.logger.Debug("connection: subscribed", "channel", channel)
	return nil
}

// RequestSync asks the server to replay what changed after since.
func (m *Manager) RequestSync(ctx context.Context, since time.Time) error {
	m.mu.Lock()
	sock := m.socket
	m.mu.Unlock()
	if sock == nil {
		return constants.ErrNotConnected
	}

	return m.send(ctx, sock, models.MessageSystem, models.SystemPayload{
		Action: models.ActionSyncRequest,
		Since:  &since,
	})
}

func (m *Manager) send(ctx context.Context, sock Socket, typ models.MessageType, payload any) error {
	env, err := models.NewEnvelope(typ, payload, m.clock.Now())
	if err != nil {
		return err
	}
	data, err := m.codec.Marshal(env)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := sock.Write(ctx, data); err != nil {
		m.logger.Error("connection: write failed", "type", typ, "error", err)
		return fmt.Errorf("%w: %w", constants.ErrConnection, err)
	}
	return nil
}

func (m *Manager) publishToast(t toast.Toast) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.ToastRequested{Toast: t})
}
