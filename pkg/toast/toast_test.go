package toast

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripsync/pkg/logger"
)

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(LevelInfo, "a", "first")
	b := New(LevelInfo, "b", "second")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Persistent)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	require.False(t, ok)

	r.Show(New(LevelSuccess, "Connected", "live updates on"))
	r.Show(New(LevelError, "Offline", "gave up"))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, LevelError, last.Level)
	assert.Len(t, r.Toasts(), 2)

	r.Reset()
	assert.Empty(t, r.Toasts())
}

func TestLogSurface(t *testing.T) {
	var buf bytes.Buffer
	s := LogSurface{Logger: logger.New(slog.NewTextHandler(&buf, nil))}

	retry := New(LevelError, "Connection lost", "could not reconnect")
	retry.Persistent = true
	retry.Action = &Action{Label: "Retry", Do: func() {}}
	s.Show(retry)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "could not reconnect")
	assert.Contains(t, out, "action=Retry")
	assert.Contains(t, out, "persistent=true")
}

func TestSurfaceFunc(t *testing.T) {
	var got string
	var s Surface = SurfaceFunc(func(t Toast) { got = t.Title })
	s.Show(New(LevelInfo, "hello", ""))
	assert.Equal(t, "hello", got)
}
