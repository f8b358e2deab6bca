package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/pawchat/pkg/ws"
)

var _ ws.Metrics = (*Prometheus)(nil)

func scrape(t *testing.T, p *Prometheus) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	p := New("")

	p.IncrementConnections()
	p.IncrementConnections()
	p.DecrementConnections()
	p.SetConnectionCount(1)
	p.IncrementReplacedSessions()
	p.IncrementMessageCount(ws.TagSendMessage)
	p.IncrementMessageCount(ws.TagSendMessage)
	p.IncrementMessageErrors(ws.TagJoinChat)
	p.IncrementDroppedMessages()
	p.IncrementInvalidMessages()
	p.IncrementReadErrors()
	p.IncrementWriteErrors()

	body := scrape(t, p)
	for _, line := range []string{
		"pawchat_ws_connects_total 2",
		"pawchat_ws_disconnects_total 1",
		"pawchat_ws_connections 1",
		"pawchat_ws_replaced_sessions_total 1",
		`pawchat_ws_events_total{type="send_message"} 2`,
		`pawchat_ws_event_errors_total{type="join_chat"} 1`,
		"pawchat_ws_dropped_deliveries_total 1",
		"pawchat_ws_invalid_frames_total 1",
		"pawchat_ws_read_errors_total 1",
		"pawchat_ws_write_errors_total 1",
	} {
		assert.Contains(t, body, line)
	}
}

func TestHandler(t *testing.T) {
	p := New("unit")
	p.RecordBroadcastLatency(3 * time.Millisecond)
	p.RecordMessageLatency(ws.TagTyping, time.Millisecond)
	p.SetRoomCount(4)

	body := scrape(t, p)
	assert.Contains(t, body, "unit_ws_rooms 4")
	assert.Contains(t, body, "unit_ws_broadcast_duration_seconds_count 1")
	assert.Contains(t, body, `unit_ws_event_duration_seconds_count{type="typing"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
