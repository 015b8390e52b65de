// Package toast defines the user-facing notice surface that the connection
// manager and the message router report through.
package toast

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/tripnest/tripsync/pkg/logger"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Action is a button offered alongside a toast.
type Action struct {
	Label string
	Do    func()
}

type Toast struct {
	ID      string
	Level   Level
	Title   string
	Message string

	// Persistent toasts stay until dismissed instead of timing out.
	Persistent bool
	Action     *Action
	CreatedAt  time.Time
}

// New returns a toast with a fresh random ID.
func New(level Level, title, message string) Toast {
	return Toast{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// Surface displays toasts. Implementations must be safe for concurrent use.
type Surface interface {
	Show(Toast)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(Toast)

func (f SurfaceFunc) Show(t Toast) { f(t) }

// Recorder keeps every toast it is shown, in order.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Show(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Last returns the most recent toast, if any.
func (r *Recorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = nil
}

// LogSurface writes toasts to a logger, mapping levels one to one.
type LogSurface struct {
	Logger logger.Logger
}

func (s LogSurface) Show(t Toast) {
	args := []any{"title", t.Title, "id", t.ID}
	if t.Persistent {
		args = append(args, "persistent", true)
	}
	if t.Action != nil {
		args = append(args, "action", t.Action.Label)
	}

	switch t.Level {
	case LevelError:
		s.Logger.Error(t.Message, args...)
	case LevelWarning:
		s.Logger.Warn(t.Message, args...)
	default:
		s.Logger.Info(t.Message, args...)
	}
}
