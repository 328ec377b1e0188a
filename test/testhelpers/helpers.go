// Package testhelpers starts complete in-process roomchat instances for the
// integration tests and wraps the WebSocket client side of the protocol.
//
// Each Stack runs the real server on a loopback listener with its own SQLite
// database. Stacks created with the same miniredis share presence, activity,
// revocations and, when the relay is enabled, room traffic.
package testhelpers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/pubsub"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/storage"
)

// TestOrigin is the origin every Stack allows by default.
const TestOrigin = "http://localhost:8080"

// TestSecret signs tokens in token mode.
const TestSecret = "integration-secret"

// Options tune a Stack. The zero value is a name-mode instance without the
// relay.
type Options struct {
	Redis     *miniredis.Miniredis
	TokenAuth bool
	AutoJoin  bool
	Relay     bool
	Customize func(cfg *config.ServerConfig)
}

// Stack is one running roomchat instance.
type Stack struct {
	Redis  *miniredis.Miniredis
	Hub    *server.Hub
	Router *chat.Router
	Rooms  *storage.RoomRegistry
	Users  *storage.UserDirectory
	Tokens *auth.TokenValidator

	BaseURL string
	WSURL   string

	server    *server.Server
	stopRelay context.CancelFunc
	done      chan struct{}
	once      sync.Once
	err       error
}

// NewStack starts an instance and registers its shutdown with t.Cleanup.
func NewStack(t *testing.T, opts Options) *Stack {
	t.Helper()
	logger := zerolog.Nop()

	mr := opts.Redis
	if mr == nil {
		mr = miniredis.RunT(t)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := storage.Open(filepath.Join(t.TempDir(), "roomchat.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	tokens := auth.NewTokenValidator(auth.TokenConfig{SecretKey: TestSecret, Issuer: "roomchat"},
		auth.NewRedisRevocationList(rdb), logger)
	users := storage.NewUserDirectory(db)
	rooms := storage.NewRoomRegistry(db)

	hub := server.NewHub(logger)
	var publisher chat.Publisher = hub
	var relay *pubsub.Relay
	if opts.Relay {
		relay = pubsub.NewRelay(rdb, logger)
		publisher = relay
	}

	var directory chat.Directory
	mode := auth.ModeName
	var verifier auth.IdentityVerifier
	if opts.TokenAuth {
		directory = users
		mode = auth.ModeToken
		verifier = tokens
	}

	router := chat.NewRouter(chat.RouterDeps{
		Directory: directory,
		Messages:  storage.NewMessageStore(db),
		Rooms:     rooms,
		Publisher: publisher,
		Presence:  presence.NewTracker(rdb, 0, logger),
		Activity:  presence.NewActivityRecorder(rdb, 0, logger),
		Logger:    logger,
	})
	lifecycle := chat.NewLifecycle(router, opts.AutoJoin, logger)

	authn, err := auth.NewAuthenticator(mode, verifier, logger)
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}

	cfg := config.Default().Server
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.RateLimit.Burst = 100
	cfg.ShutdownTimeout = 2 * time.Second
	if opts.Customize != nil {
		opts.Customize(&cfg)
	}

	srv := server.New(server.Options{
		Config:        cfg,
		Authenticator: authn,
		Lifecycle:     lifecycle,
		Hub:           hub,
		Logger:        logger,
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	s := &Stack{
		Redis:     mr,
		Hub:       hub,
		Router:    router,
		Rooms:     rooms,
		Users:     users,
		Tokens:    tokens,
		BaseURL:   "http://" + l.Addr().String(),
		WSURL:     "ws://" + l.Addr().String() + "/ws",
		server:    srv,
		stopRelay: stopRelay,
		done:      make(chan struct{}),
	}

	go srv.RunHub()
	if relay != nil {
		go func() { _ = relay.Run(relayCtx, hub.Deliver) }()
		select {
		case <-relay.Ready():
		case <-time.After(5 * time.Second):
			t.Fatal("Relay did not subscribe in time")
		}
	}
	go func() {
		defer close(s.done)
		_ = srv.Serve(l)
	}()

	t.Cleanup(func() {
		_ = s.Shutdown()
		_ = storage.Close(db)
		_ = rdb.Close()
	})
	return s
}

// Shutdown stops the instance. It is safe to call more than once.
func (s *Stack) Shutdown() error {
	s.once.Do(func() {
		s.err = s.server.Shutdown()
		s.stopRelay()
		<-s.done
	})
	return s.err
}

// HandshakeURL builds the /ws URL for the given query parameters; empty values
// are left out.
func (s *Stack) HandshakeURL(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	return s.WSURL + "?" + q.Encode()
}

// Dial opens a raw handshake with the given Origin header.
func Dial(target, origin string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	if header == nil {
		header = http.Header{}
	}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ConnectAs opens a name-mode connection for username in roomID and waits
// until the hub has registered it.
func (s *Stack) ConnectAs(t *testing.T, roomID, username string) *websocket.Conn {
	t.Helper()
	return s.connect(t, roomID, s.HandshakeURL(map[string]string{
		auth.RoomParam:     roomID,
		auth.UsernameParam: username,
	}))
}

// ConnectWithToken opens a token-mode connection carrying token as a query
// parameter.
func (s *Stack) ConnectWithToken(t *testing.T, roomID, token string) *websocket.Conn {
	t.Helper()
	return s.connect(t, roomID, s.HandshakeURL(map[string]string{
		auth.RoomParam:  roomID,
		auth.TokenParam: token,
	}))
}

func (s *Stack) connect(t *testing.T, roomID, target string) *websocket.Conn {
	t.Helper()
	before := s.Hub.RoomClientCount(roomID)
	conn, _, err := Dial(target, TestOrigin, nil)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", roomID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	WaitFor(t, "client registration", func() bool {
		return s.Hub.RoomClientCount(roomID) > before
	})
	return conn
}

// WaitFor polls cond until it holds or a few seconds pass.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// Send writes one request frame.
func Send(t *testing.T, conn *websocket.Conn, roomID, senderID string, kind chat.MessageType, body string) {
	t.Helper()
	err := conn.WriteJSON(chat.Request{RoomID: roomID, Message: body, SenderID: senderID, Type: kind})
	if err != nil {
		t.Fatalf("Failed to send %s frame: %v", kind, err)
	}
}

// Receive reads one message frame.
func Receive(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	msg, err := ReceiveWithin(conn, 3*time.Second)
	if err != nil {
		t.Fatalf("Failed to receive message: %v", err)
	}
	return msg
}

// ReceiveWithin reads one message frame within wait.
func ReceiveWithin(conn *websocket.Conn, wait time.Duration) (chat.Message, error) {
	var msg chat.Message
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return msg, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	err = json.Unmarshal(raw, &msg)
	return msg, err
}

// ExpectNoMessage fails if a frame arrives within wait. A timed-out read
// leaves the connection unusable, so this must be the last read on conn.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	if msg, err := ReceiveWithin(conn, wait); err == nil {
		t.Fatalf("Expected no message, got %+v", msg)
	}
}

// AssertMessage checks the type and body of msg.
func AssertMessage(t *testing.T, msg chat.Message, kind chat.MessageType, body string) {
	t.Helper()
	if msg.Type != kind {
		t.Errorf("Expected message type %s, got %s (%q)", kind, msg.Type, msg.Body)
	}
	if msg.Body != body {
		t.Errorf("Expected body %q, got %q", body, msg.Body)
	}
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp == nil {
		t.Fatalf("Expected status code %d, got no response", expected)
	}
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// GetJSON issues a GET against the stack and decodes the JSON body into v.
func (s *Stack) GetJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(s.BaseURL + path)
	if err != nil {
		t.Fatalf("Failed to GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode %s: %v", path, err)
		}
	}
	return resp
}
