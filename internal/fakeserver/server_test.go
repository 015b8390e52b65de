package fakeserver

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripsync/pkg/models"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func dial(t *testing.T, s *Server, token string) *gorilla.Conn {
	t.Helper()
	conn, res, err := gorilla.DefaultDialer.Dial(s.URL()+"?token="+token, nil)
	require.NoError(t, err)
	res.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerRecordsSubscriptions(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s, "abc")

	env, err := models.NewEnvelope(models.MessageSystem, models.SystemPayload{
		Action:  models.ActionSubscribe,
		Channel: "user:u1:bookings",
	}, time.Now())
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, data))

	require.Eventually(t, func() bool {
		return len(s.Subscriptions("abc")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"user:u1:bookings"}, s.Subscriptions("abc"))
	assert.Len(t, s.ReceivedOf(models.MessageSystem), 1)
	assert.Equal(t, 1, s.Connections())
}

func TestServerPush(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s, "abc")
	require.Eventually(t, func() bool { return s.Connections() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Push(models.MessageHeartbeat, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, models.MessageHeartbeat, env.Type)
}

func TestServerCloseAll(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s, "abc")
	require.Eventually(t, func() bool { return s.Connections() == 1 }, time.Second, 10*time.Millisecond)

	s.CloseAll(4000, "restarting")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	var ce *gorilla.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4000, ce.Code)
	assert.Equal(t, "restarting", ce.Text)
}

func TestServerRejectsUnknownTokens(t *testing.T) {
	s := startServer(t)
	s.AcceptTokens("good")

	_, res, err := gorilla.DefaultDialer.Dial(s.URL()+"?token=bad", nil)
	require.Error(t, err)
	if res != nil {
		res.Body.Close()
	}
	assert.Equal(t, 1, s.Handshakes())
	assert.Equal(t, 0, s.Connections())
}
