package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/storage"
)

const testOrigin = "http://localhost:8080"

type harness struct {
	hub     *Hub
	router  *chat.Router
	tracker *presence.Tracker
	ts      *httptest.Server
	wsURL   string
}

func newHarness(t *testing.T, autoJoin bool, customize func(cfg *config.ServerConfig)) *harness {
	t.Helper()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := storage.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	tracker := presence.NewTracker(rdb, 0, logger)
	router := chat.NewRouter(chat.RouterDeps{
		Messages:  storage.NewMessageStore(db),
		Publisher: hub,
		Presence:  tracker,
		Activity:  presence.NewActivityRecorder(rdb, 0, logger),
		Logger:    logger,
	})
	lifecycle := chat.NewLifecycle(router, autoJoin, logger)
	authn, err := auth.NewAuthenticator(auth.ModeName, nil, logger)
	require.NoError(t, err)

	cfg := config.Default().Server
	cfg.AllowedOrigins = []string{testOrigin}
	if customize != nil {
		customize(&cfg)
	}

	srv := New(Options{
		Config:        cfg,
		Authenticator: authn,
		Lifecycle:     lifecycle,
		Hub:           hub,
		Logger:        logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{
		hub:     hub,
		router:  router,
		tracker: tracker,
		ts:      ts,
		wsURL:   "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (h *harness) handshakeURL(roomID, username string) string {
	q := url.Values{}
	if roomID != "" {
		q.Set(auth.RoomParam, roomID)
	}
	if username != "" {
		q.Set(auth.UsernameParam, username)
	}
	return h.wsURL + "?" + q.Encode()
}

func (h *harness) dial(t *testing.T, roomID, username string) *websocket.Conn {
	t.Helper()
	before := h.hub.RoomClientCount(roomID)
	conn, resp, err := dialWithOrigin(h.handshakeURL(roomID, username), testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// The hub registers the client asynchronously.
	require.Eventually(t, func() bool {
		return h.hub.RoomClientCount(roomID) > before
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func dialWithOrigin(target, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(target, headers)
}

func send(t *testing.T, conn *websocket.Conn, req chat.Request) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
}

func receive(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg chat.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

// expectSilence must be the last read on conn: a timed-out read leaves the
// connection unusable.
func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", raw)
	}
}
