package gwsws

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lxzan/gws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripsync/internal/fakeserver"
	"github.com/tripnest/tripsync/pkg/connection"
	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/models"
)

func TestCloseError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		reason string
	}{
		{"close frame", &gws.CloseError{Code: 4000, Reason: []byte("restarting")}, 4000, "restarting"},
		{"normal close", &gws.CloseError{Code: 1000}, constants.CloseNormal, ""},
		{"close frame without status", &gws.CloseError{}, constants.CloseAbnormal, ""},
		{"local close", net.ErrClosed, constants.CloseAbnormal, "connection closed locally"},
		{"io error", errors.New("reset by peer"), constants.CloseAbnormal, "reset by peer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *connection.CloseError
			require.ErrorAs(t, closeError(tt.err), &ce)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.reason, ce.Reason)
		})
	}
}

func dialServer(t *testing.T) (*fakeserver.Server, connection.Socket) {
	t.Helper()
	s := fakeserver.NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sock, err := New().Dial(ctx, s.URL()+"?token=tok")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Connections() == 1 }, time.Second, 10*time.Millisecond)
	return s, sock
}

func TestReadWrite(t *testing.T) {
	s, sock := dialServer(t)
	defer sock.Close(constants.CloseNormal, "")

	require.NoError(t, s.Push(models.MessageHeartbeat, nil))
	require.NoError(t, s.Push(models.MessageUserUpdate, models.UserUpdatePayload{UserID: "u1"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range []models.MessageType{models.MessageHeartbeat, models.MessageUserUpdate} {
		data, err := sock.Read(ctx)
		require.NoError(t, err)
		assert.Contains(t, string(data), string(want), "frames arrive in order")
	}

	env, err := models.NewEnvelope(models.MessageHeartbeat, nil, time.Now())
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, sock.Write(ctx, data))
	assert.Eventually(t, func() bool {
		return len(s.ReceivedOf(models.MessageHeartbeat)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestReadReportsServerClose(t *testing.T) {
	s, sock := dialServer(t)
	defer sock.Close(constants.CloseNormal, "")

	s.CloseAll(4000, "restarting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := sock.Read(ctx)
	assert.Equal(t, 4000, connection.CloseCode(err))
}

func TestReadHonoursContext(t *testing.T) {
	_, sock := dialServer(t)
	defer sock.Close(constants.CloseNormal, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sock.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRejectedHandshake(t *testing.T) {
	s := fakeserver.NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	s.AcceptTokens("other")

	_, err := New().Dial(context.Background(), s.URL()+"?token=tok")
	assert.Error(t, err)
}
