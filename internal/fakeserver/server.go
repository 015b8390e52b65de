// Package fakeserver is a push server for integration tests. It speaks the
// tripsync envelope protocol over WebSocket, records what clients send, and
// can close or drop connections on demand.
//
// The WebSocket server is implemented using the `gws` library.
package fakeserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lxzan/gws"
	"github.com/tripnest/tripsync/pkg/models"
)

const sessionTokenKey = "token"

type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server

	mu            sync.RWMutex
	connections   map[*gws.Conn]string
	received      []models.Envelope
	subscriptions map[string][]string
	tokens        map[string]bool
	handshakes    int
}

type Handler struct {
	server *Server
}

// NewServer returns a server that will listen on addr once started. Use
// "127.0.0.1:0" for a random port.
func NewServer(addr string) *Server {
	s := &Server{
		addr:          addr,
		connections:   make(map[*gws.Conn]string),
		subscriptions: make(map[string][]string),
	}

	handler := &Handler{server: s}
	s.server = gws.NewServer(handler, &gws.ServerOption{
		Authorize: func(r *http.Request, session gws.SessionStorage) bool {
			token := r.URL.Query().Get("token")
			s.mu.Lock()
			s.handshakes++
			allowed := s.tokens == nil || s.tokens[token]
			s.mu.Unlock()
			if allowed {
				session.Store(sessionTokenKey, token)
			}
			return allowed
		},
	})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
			log.Printf("fakeserver: %v", err)
		}
	}
	return s
}

// AcceptTokens restricts handshakes to the given tokens. By default every
// token is accepted.
func (s *Server) AcceptTokens(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool, len(tokens))
	for _, t := range tokens {
		s.tokens[t] = true
	}
}

func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(listener); err != nil {
			if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
				log.Printf("fakeserver: %v", err)
			}
		}
	}()
	return nil
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.DropAll()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL is the address clients dial.
func (s *Server) URL() string {
	return "ws://" + s.Address() + "/ws"
}

func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *Server) Handshakes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handshakes
}

// Received returns every envelope clients sent, in arrival order.
func (s *Server) Received() []models.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Envelope, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Server) ReceivedOf(typ models.MessageType) []models.Envelope {
	var out []models.Envelope
	for _, env := range s.Received() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// Subscriptions returns the channels subscribed with token, in order.
func (s *Server) Subscriptions(token string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.subscriptions[token]...)
}

// Push sends an envelope of type typ to every connection.
func (s *Server) Push(typ models.MessageType, payload any) error {
	env, err := models.NewEnvelope(typ, payload, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.Broadcast(data)
}

// Broadcast writes raw to every connection as a text frame.
func (s *Server) Broadcast(raw []byte) error {
	var errs []error
	for _, conn := range s.conns() {
		if err := conn.WriteMessage(gws.OpcodeText, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseAll sends a close frame with code to every connection.
func (s *Server) CloseAll(code uint16, reason string) {
	for _, conn := range s.conns() {
		conn.WriteClose(code, []byte(reason))
	}
}

// DropAll closes every TCP connection without a close frame.
func (s *Server) DropAll() {
	for _, conn := range s.conns() {
		_ = conn.NetConn().Close()
	}
}

func (s *Server) conns() []*gws.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*gws.Conn, 0, len(s.connections))
	for conn := range s.connections {
		out = append(out, conn)
	}
	return out
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	token := ""
	if v, ok := socket.Session().Load(sessionTokenKey); ok {
		token, _ = v.(string)
	}
	h.server.mu.Lock()
	h.server.connections[socket] = token
	h.server.mu.Unlock()
}

func (h *Handler) OnClose(socket *gws.Conn, _ error) {
	h.server.mu.Lock()
	delete(h.server.connections, socket)
	h.server.mu.Unlock()
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("fakeserver: error writing pong: %v", err)
	}
}

func (h *Handler) OnPong(_ *gws.Conn, _ []byte) {}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	var env models.Envelope
	if err := json.Unmarshal(message.Bytes(), &env); err != nil {
		log.Printf("fakeserver: malformed frame: %v", err)
		return
	}

	h.server.mu.Lock()
	defer h.server.mu.Unlock()
	h.server.received = append(h.server.received, env)

	if env.Type != models.MessageSystem {
		return
	}
	var p models.SystemPayload
	if err := env.Decode(&p); err != nil || p.Action != models.ActionSubscribe {
		return
	}
	token := h.server.connections[socket]
	h.server.subscriptions[token] = append(h.server.subscriptions[token], p.Channel)
}

func isUseOfClosedNetworkError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
