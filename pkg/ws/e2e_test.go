package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, env *testEnv) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = env.m.HandleUpgrade(w, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	return conn
}

func TestWebsocketPingAndMessage(t *testing.T) {
	env := newTestEnv(t, WithAllowAllOrigins())
	url := newWSServer(t, env)
	a, b := uuid.New(), uuid.New()
	room := env.chats.addRoom(a, b)

	ca := dial(t, url+"?user="+a.String())
	require.Eventually(t, func() bool { return env.users.onlineCalls(a) > 0 }, waitTimeout, 5*time.Millisecond)
	cb := dial(t, url+"?user="+b.String())
	require.Eventually(t, func() bool { return env.users.onlineCalls(b) > 0 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, ca.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, data, err := ca.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))

	require.NoError(t, ca.WriteJSON(map[string]any{
		"type": TagSendMessage,
		"data": map[string]any{"chat_id": room, "content": "found a beagle"},
	}))

	var fr outFrame
	require.NoError(t, cb.ReadJSON(&fr))
	assert.Equal(t, TagNewMessage, fr.Type)
	msg := decodeData[NewMessagePayload](t, fr)
	assert.Equal(t, "found a beagle", msg.Message.Content)

	require.NoError(t, ca.ReadJSON(&fr))
	assert.Equal(t, TagNewMessage, fr.Type)

	require.NoError(t, ca.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return !env.m.IsOnline(a) }, waitTimeout, 5*time.Millisecond)
}

func TestWebsocketUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	url := newWSServer(t, env)

	conn := dial(t, url+"?user=not-a-uuid")
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, CloseUnauthorized, ce.Code)
	assert.Equal(t, "Unauthorized", ce.Text)
	assert.Zero(t, env.m.Registry().Count())
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	url := newWSServer(t, env)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+"?user="+uuid.NewString(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebsocketReplacedCloseCode(t *testing.T) {
	env := newTestEnv(t)
	url := newWSServer(t, env)
	user := uuid.New()

	first := dial(t, url+"?user="+user.String())
	require.Eventually(t, func() bool { return env.users.onlineCalls(user) == 1 }, waitTimeout, 5*time.Millisecond)
	dial(t, url+"?user="+user.String())

	_, _, err := first.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, CloseReplaced, ce.Code)
}
