package connection

import (
	"context"
	"errors"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tripnest/tripsync/pkg/models"
)

// mockSocket is driven by the test: push frames with deliver, simulate a
// server-side close with drop.
type mockSocket struct {
	mu        sync.Mutex
	written   []models.Envelope
	frames    chan []byte
	dropped   chan error
	closed    chan struct{}
	closeOnce sync.Once
	closeCode int
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		frames:  make(chan []byte, 16),
		dropped: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (s *mockSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.dropped:
		return nil, err
	case <-s.closed:
		return nil, &CloseError{Code: s.CloseCode()}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mockSocket) Write(_ context.Context, data []byte) error {
	select {
	case <-s.closed:
		return errors.New("write on closed socket")
	default:
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, env)
	return nil
}

func (s *mockSocket) Close(code int, _ string) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.mu.Unlock()
		close(s.closed)
	})
	return nil
}

func (s *mockSocket) CloseCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *mockSocket) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *mockSocket) deliver(data string) { s.frames <- []byte(data) }

func (s *mockSocket) drop(code int) { s.dropped <- &CloseError{Code: code} }

func (s *mockSocket) Written() []models.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Envelope, len(s.written))
	copy(out, s.written)
	return out
}

// WrittenOf returns the frames of type typ.
func (s *mockSocket) WrittenOf(typ models.MessageType) []models.Envelope {
	var out []models.Envelope
	for _, env := range s.Written() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// subscriptions returns the channels named in subscribe frames, in order.
func (s *mockSocket) subscriptions() []string {
	var out []string
	for _, env := range s.WrittenOf(models.MessageSystem) {
		var p models.SystemPayload
		if err := env.Decode(&p); err == nil && p.Action == models.ActionSubscribe {
			out = append(out, p.Channel)
		}
	}
	return out
}

// mockDialer hands out queued sockets, or fails when the queue is empty.
type mockDialer struct {
	mu      sync.Mutex
	sockets []*mockSocket
	urls    []string
	err     error
}

func (d *mockDialer) Dial(_ context.Context, url string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.sockets) == 0 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, errors.New("connection refused")
	}
	s := d.sockets[0]
	d.sockets = d.sockets[1:]
	return s, nil
}

func (d *mockDialer) queue(s ...*mockSocket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sockets = append(d.sockets, s...)
}

func (d *mockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}
