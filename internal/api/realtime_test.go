package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/sync/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// assertSilent fails if a frame arrives within the wait. The connection is
// unusable for reads afterwards.
func assertSilent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	var frame map[string]any
	err := conn.ReadJSON(&frame)
	assert.Error(t, err, "unexpected frame: %v", frame)
}

func (e *testEnv) authenticated(t *testing.T, tenantID string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":     "authenticate",
		"token":    e.token(t, tenantID),
		"tenantId": tenantID,
	}))
	frame := readFrame(t, conn)
	require.Equal(t, "authenticated", frame["type"], frame)
	require.Equal(t, true, frame["authenticated"])
	return conn
}

func TestRealtime_AuthenticationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := map[string]map[string]string{
		"bad token":       {"type": "authenticate", "token": "garbage", "tenantId": "acme"},
		"tenant mismatch": {"type": "authenticate", "token": env.token(t, "acme"), "tenantId": "globex"},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			conn := env.dial(t)
			require.NoError(t, conn.WriteJSON(msg))

			frame := readFrame(t, conn)

			assert.Equal(t, "authentication_error", frame["type"])
			assert.NotEmpty(t, frame["message"])
		})
	}
	assert.Equal(t, 0, env.bus.ConnectionCount())
}

func TestRealtime_PingPong(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	frame := readFrame(t, conn)

	assert.Equal(t, "pong", frame["type"])
	assert.NotEmpty(t, frame["timestamp"])
}

func TestRealtime_UnknownAndMalformedFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "error", readFrame(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	assert.Equal(t, "error", readFrame(t, conn)["type"])
}

func TestRealtime_PushNotifiesOnlyOwnTenant(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)
	acme := env.authenticated(t, "acme")
	globex := env.authenticated(t, "globex")

	// ACT
	status, body := env.do(t, http.MethodPost, "/sync/push", env.token(t, "acme"),
		`{"changes":{"end_user":[{"email":"ada@example.com"}]}}`)
	require.Equal(t, http.StatusOK, status, body)

	// ASSERT
	frame := readFrame(t, acme)
	assert.Equal(t, "sync_notification", frame["event"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "data_available", payload["type"])
	assert.Equal(t, "end_user", payload["entityType"])

	assertSilent(t, globex, 200*time.Millisecond)
}

func TestRealtime_StatusUpdateRelayedToPeers(t *testing.T) {
	env := newTestEnv(t)
	sender := env.authenticated(t, "acme")
	peer := env.authenticated(t, "acme")

	require.NoError(t, sender.WriteJSON(map[string]string{
		"type":       "sync_status_update",
		"status":     "syncing",
		"entityType": "end_user",
	}))

	frame := readFrame(t, peer)
	assert.Equal(t, "sync_status_update", frame["event"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "syncing", payload["status"])
	assert.NotContains(t, payload, "type")

	// The sender's next frame is the pong, not its own update
	require.NoError(t, sender.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, sender)["type"])
}

func TestRealtime_StatusUpdateRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "sync_status_update", "status": "idle"}))

	assert.Equal(t, "authentication_error", readFrame(t, conn)["type"])
}

func TestRealtime_DisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	conn := env.authenticated(t, "acme")
	require.Equal(t, 1, env.bus.TenantConnectionCount("acme"))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return env.bus.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtime_KeepalivePongRefreshesPresence(t *testing.T) {
	// ARRANGE
	presence := newFakePresence()
	env := newTestEnvWith(t, envOptions{presence: presence, pingEvery: 100 * time.Millisecond})
	conn := env.authenticated(t, "acme")
	require.Eventually(t, func() bool { return presence.refreshes() >= 1 }, 2*time.Second, 10*time.Millisecond)
	afterAuth := presence.refreshes()

	// ACT: keep reading so the dialer answers control pings
	require.NoError(t, conn.SetReadDeadline(time.Time{}))
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// ASSERT
	assert.Eventually(t, func() bool {
		return presence.refreshes() >= afterAuth+2
	}, 2*time.Second, 10*time.Millisecond)
	count, err := presence.CountTenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}