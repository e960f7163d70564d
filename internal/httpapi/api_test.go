package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/presence/internal/logging"
	"github.com/campuslink/presence/pkg/domain"
	"github.com/campuslink/presence/pkg/presence"
	"github.com/campuslink/presence/pkg/store"
	"github.com/campuslink/presence/pkg/transport/websocket"
)

type testEnv struct {
	srv   *httptest.Server
	hub   *presence.Hub
	store *store.MemoryStore
}

func newTestEnv(t *testing.T, opts presence.Options) *testEnv {
	t.Helper()

	logger := logging.New(logging.Config{Level: "error", Format: "text"})
	memStore := store.NewMemoryStore()

	hub := presence.NewHub(memStore, logger, nil, opts)
	require.NoError(t, hub.Start(context.Background()))

	ws := websocket.NewServer(
		websocket.WithHub(hub),
		websocket.WithLogger(logger),
	)

	srv := httptest.NewServer(NewRouter(hub, ws, logger))

	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})

	return &testEnv{srv: srv, hub: hub, store: memStore}
}

func quietOptions() presence.Options {
	return presence.Options{
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  time.Hour,
		StoreTimeout:      time.Second,
		SendTimeout:       time.Second,
	}
}

func (e *testEnv) dial(t *testing.T) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *gorillaws.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte(frame)))
}

// readUntilStatus reads frames until a status update for userID with the
// wanted flag arrives. Other frames in between are skipped.
func readUntilStatus(t *testing.T, conn *gorillaws.Conn, userID string, online bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		var m domain.Message
		require.NoError(t, conn.ReadJSON(&m), "waiting for status of user %s", userID)
		if m.Type == domain.MessageTypeStatusUpdate && m.UserID == userID && m.IsOnline != nil && *m.IsOnline == online {
			return
		}
	}
}

func TestPresenceLifecycle(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	a := env.dial(t)
	writeFrame(t, a, `{"type":"online","userId":"1"}`)
	readUntilStatus(t, a, "1", true)
	assert.True(t, env.store.IsOnline("1"))

	b := env.dial(t)
	writeFrame(t, b, `{"type":"online","userId":"2"}`)

	// Everyone hears about user 2, the announcer included.
	readUntilStatus(t, a, "2", true)
	readUntilStatus(t, b, "2", true)
	assert.True(t, env.store.IsOnline("2"))

	// An explicit offline is broadcast the same way.
	writeFrame(t, b, `{"type":"offline","userId":"2"}`)
	readUntilStatus(t, a, "2", false)
	assert.False(t, env.store.IsOnline("2"))
	assert.True(t, env.store.IsOnline("1"))
}

func TestDisconnectMarksUserOffline(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	a := env.dial(t)
	writeFrame(t, a, `{"type":"online","userId":"1"}`)
	readUntilStatus(t, a, "1", true)

	b := env.dial(t)
	writeFrame(t, b, `{"type":"online","userId":"2"}`)
	readUntilStatus(t, a, "2", true)

	// Drop b without any offline frame.
	b.Close()

	readUntilStatus(t, a, "2", false)
	assert.False(t, env.store.IsOnline("2"))
}

func TestHeartbeatTimeoutClosesConnection(t *testing.T) {
	env := newTestEnv(t, presence.Options{
		HeartbeatInterval: 50 * time.Millisecond,
		HeartbeatTimeout:  50 * time.Millisecond,
		StoreTimeout:      time.Second,
		SendTimeout:       time.Second,
	})

	a := env.dial(t)
	writeFrame(t, a, `{"type":"online","userId":"9"}`)

	// Without pings the server must announce the offline transition and then
	// close with a normal closure carrying the timeout reason.
	require.NoError(t, a.SetReadDeadline(time.Now().Add(3*time.Second)))

	sawOffline := false
	for {
		var m domain.Message
		err := a.ReadJSON(&m)
		if err != nil {
			var closeErr *gorillaws.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, gorillaws.CloseNormalClosure, closeErr.Code)
			assert.Equal(t, "connection timeout", closeErr.Text)
			break
		}
		if m.Type == domain.MessageTypeStatusUpdate && m.UserID == "9" && m.IsOnline != nil && !*m.IsOnline {
			sawOffline = true
		}
	}

	assert.True(t, sawOffline, "offline broadcast must precede the close")
	assert.False(t, env.store.IsOnline("9"))
}

func TestMalformedFrameGetsErrorReply(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	a := env.dial(t)
	writeFrame(t, a, `{"type":"online","userId":"1"}`)
	readUntilStatus(t, a, "1", true)

	writeFrame(t, a, `not json at all`)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(3*time.Second)))
	var m domain.Message
	require.NoError(t, a.ReadJSON(&m))
	assert.Equal(t, domain.MessageTypeError, m.Type)
	assert.Equal(t, "invalid message format", m.Message)

	// The connection survives and keeps working.
	writeFrame(t, a, `{"type":"ping"}`)
	assert.True(t, env.store.IsOnline("1"))
}

func TestOfflineEndpoint(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	a := env.dial(t)
	writeFrame(t, a, `{"type":"online","userId":"5"}`)
	readUntilStatus(t, a, "5", true)

	resp, err := http.Post(env.srv.URL+"/presence/offline", "application/json",
		bytes.NewBufferString(`{"userId":"5"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	// The websocket stays open; only the presence flag flips.
	readUntilStatus(t, a, "5", false)
	assert.False(t, env.store.IsOnline("5"))

	writeFrame(t, a, `{"type":"online","userId":"5"}`)
	readUntilStatus(t, a, "5", true)
}

func TestOfflineEndpointValidation(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	resp, err := http.Post(env.srv.URL+"/presence/offline", "application/json",
		bytes.NewBufferString(`{broken`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(env.srv.URL+"/presence/offline", "application/json",
		bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	a := env.dial(t)
	writeFrame(t, a, `{"type":"online","userId":"1"}`)
	readUntilStatus(t, a, "1", true)

	resp, err := http.Get(env.srv.URL + "/presence/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats domain.HubStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.ConnectedClients)
	assert.Equal(t, 1, stats.IdentifiedUsers)
	assert.GreaterOrEqual(t, stats.MessagesReceived, int64(1))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, quietOptions())

	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
