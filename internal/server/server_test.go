package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tokmz/pawchat/internal/auth"
	"github.com/tokmz/pawchat/internal/store"
	"github.com/tokmz/pawchat/pkg/logger"
	"github.com/tokmz/pawchat/pkg/metrics"
	"github.com/tokmz/pawchat/pkg/orm"
	"github.com/tokmz/pawchat/pkg/ws"
)

type testServer struct {
	srv   *Server
	jwt   *auth.JWT
	db    *gorm.DB
	chats *store.Chats
}

func newTestServer(t *testing.T, cfg Config, health func(context.Context) error) *testServer {
	t.Helper()
	dbCfg := orm.DefaultConfig()
	dbCfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	dbCfg.MaxOpenConns = 1
	db, err := orm.New(dbCfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { _ = orm.Close(db) })

	jwtCfg := auth.DefaultConfig()
	jwtCfg.Secret = "test-secret"
	jwt, err := auth.New(jwtCfg)
	require.NoError(t, err)

	users, chats := store.NewUsers(db), store.NewChats(db)
	prom := metrics.New("")
	m, err := ws.NewManager(ws.Dependencies{
		Auth:     jwt,
		Chats:    chats,
		Messages: store.NewMessages(db, chats),
		Users:    users,
	}, ws.WithAllowAllOrigins(), ws.WithMetrics(prom))
	require.NoError(t, err)

	cfg.Mode = "test"
	cfg.Banner = false
	srv, err := New(cfg, Dependencies{Manager: m, Metrics: prom.Handler(), Health: health})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return &testServer{srv: srv, jwt: jwt, db: db, chats: chats}
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (ts *testServer) user(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	u := &store.User{Email: uuid.NewString() + "@pets.test"}
	require.NoError(t, ts.db.Create(u).Error)
	token, err := ts.jwt.Issue(u.ID)
	require.NoError(t, err)
	return u.ID, token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestNewRequiresManager(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), nil)
	w := ts.get("/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w).Message)
}

func TestHealthzFailing(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), func(context.Context) error {
		return errors.New("database is gone")
	})
	w := ts.get("/healthz")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, 1000, resp.Code)
	assert.Equal(t, "unhealthy", resp.Message)
}

func TestMetricsRoute(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), nil)
	w := ts.get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pawchat_ws_connections")
}

func TestRateLimitUpgrade(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1, BucketExpiry: time.Minute}
	ts := newTestServer(t, cfg, nil)

	// 非 websocket 请求被 upgrader 拒绝，但仍消耗令牌
	first := ts.get("/ws")
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := ts.get("/ws")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1005, decode(t, second).Code)

	// 统计接口不限流
	assert.Equal(t, http.StatusOK, ts.get("/ws/stats").Code)
}

func TestLimiterRefillAndSweep(t *testing.T) {
	now := time.Now()
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, BucketExpiry: time.Minute})
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.sweep())
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestWebsocketStats(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), nil)
	hs := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(hs.Close)

	a, tokenA := ts.user(t)
	b, _ := ts.user(t)
	room, err := ts.chats.CreatePrivateRoom(context.Background(), a, b)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(hs.URL, "/ws?token="+tokenA), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var stats ws.Stats
	require.Eventually(t, func() bool {
		w := ts.get("/ws/stats")
		if w.Code != http.StatusOK {
			return false
		}
		var resp struct {
			Data ws.Stats `json:"data"`
		}
		if json.Unmarshal(w.Body.Bytes(), &resp) != nil {
			return false
		}
		stats = resp.Data
		return stats.TotalConnections == 1 && stats.TotalChats == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{a.String()}, stats.ActiveConnections)
	assert.Equal(t, 1, stats.ChatDistribution[room.String()])
}

func TestWebsocketPathUserMismatch(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), nil)
	hs := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(hs.Close)

	_, token := ts.user(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(hs.URL, "/ws/"+uuid.NewString()+"?token="+token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ws.CloseUnauthorized, ce.Code)
}

func TestWebsocketPathUserMatches(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), nil)
	hs := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(hs.Close)

	id, token := ts.user(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(hs.URL, "/ws/"+id.String()+"?token="+token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShutdownTimeout = time.Second
	ts := newTestServer(t, cfg, nil)

	ln, err := newLocalListener()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, ts.srv.manager.Stats().TotalConnections == 0)
}

func newLocalListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func TestCORS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORS = CORSConfig{Enabled: true, AllowOrigins: []string{"https://*.pawchat.example"}, MaxAge: time.Hour}
	ts := newTestServer(t, cfg, nil)

	req := httptest.NewRequest(http.MethodOptions, "/ws/stats", nil)
	req.Header.Set("Origin", "https://admin.pawchat.example")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.pawchat.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginMatcher(t *testing.T) {
	m := newOriginMatcher([]string{"https://pets.example", "https://*.shelter.example"})
	assert.True(t, m.match("https://pets.example"))
	assert.True(t, m.match("https://north.shelter.example"))
	assert.False(t, m.match("https://.shelter.example"))
	assert.False(t, m.match("http://pets.example"))
	assert.True(t, newOriginMatcher([]string{"*"}).match("https://anything"))
}

func TestResponseCarriesRequestID(t *testing.T) {
	ts := newTestServer(t, DefaultConfig(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(logger.RequestIDHeader, "lost-cat-7")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "lost-cat-7", decode(t, w).TraceID)
}
