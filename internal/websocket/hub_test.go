package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procurement/internal/middleware"
	"procurement/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("ws-test-secret")

func token(t *testing.T, role workflow.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func startServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.InitAuth(secret, false)

	hub := NewHub()
	go hub.Run()

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gorilla.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestServeWsRejectsMissingOrBadToken(t *testing.T) {
	_, url := startServer(t)

	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gorilla.DefaultDialer.Dial(url+"?token=bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublishReachesClients(t *testing.T) {
	hub, url := startServer(t)
	staff := dial(t, url+"?token="+token(t, workflow.RoleRector))
	supplier := dial(t, url+"?token="+token(t, workflow.RoleSupplier))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("requisition.stage_changed", map[string]string{"to": "Rector"})
	hub.Publish("tender.created", map[string]string{"reference_no": "TN-20260101-00001"})

	ev := readEvent(t, staff)
	assert.Equal(t, "requisition.stage_changed", ev["event"])
	assert.Equal(t, "Rector", ev["data"].(map[string]interface{})["to"])
	assert.Equal(t, "tender.created", readEvent(t, staff)["event"])

	ev = readEvent(t, supplier)
	assert.Equal(t, "tender.created", ev["event"], "suppliers only receive tender events")
}

func TestEventVisibility(t *testing.T) {
	assert.True(t, Event{Event: "order.created"}.visibleTo(workflow.RoleProcurement))
	assert.False(t, Event{Event: "order.created"}.visibleTo(workflow.RoleSupplier))
	assert.True(t, Event{Event: "tender.closed"}.visibleTo(workflow.RoleSupplier))
}

func TestPublishDoesNotBlockWithoutRunLoop(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.Broadcast)+10; i++ {
		hub.Publish("order.created", i)
	}
	assert.Len(t, hub.Broadcast, cap(hub.Broadcast))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub("https://app.example.test")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.test")
	assert.False(t, hub.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://app.example.test")
	assert.True(t, hub.upgrader.CheckOrigin(req))
}
