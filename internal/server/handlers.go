// Package server exposes HTTP handlers, including the authenticated WebSocket
// upgrade and health checks.
package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
)

// Authenticator resolves the session of a handshake request.
type Authenticator interface {
	Authenticate(r *http.Request) (*chat.Session, error)
}

// WebSocketHandler authenticates handshake requests, upgrades them and hands
// the resulting clients to the hub.
type WebSocketHandler struct {
	auth      Authenticator
	lifecycle *chat.Lifecycle
	hub       *Hub
	upgrader  websocket.Upgrader
	client    ClientOptions
	log       zerolog.Logger
}

// NewWebSocketHandler creates the /ws handler.
func NewWebSocketHandler(authn Authenticator, lifecycle *chat.Lifecycle, hub *Hub, origins *OriginPolicy, client ClientOptions, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		auth:      authn,
		lifecycle: lifecycle,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		client: client,
		log:    logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP validates the method, authenticates the handshake before any
// upgrade, then hands the connection to the hub. The client's read pump
// notifies the lifecycle.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.auth.Authenticate(r)
	if err != nil {
		status := http.StatusUnauthorized
		var hsErr *auth.HandshakeError
		if errors.As(err, &hsErr) {
			status = hsErr.Status
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("conn_id", sess.ID()).Msg("websocket upgrade failed")
		return
	}

	opts := h.client
	opts.Addr = r.RemoteAddr
	client := NewClient(conn, h.hub, sess, h.lifecycle, opts)

	if err := h.hub.Register(client); err != nil {
		h.log.Warn().Err(err).Str("conn_id", sess.ID()).Msg("connection refused; hub unavailable")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "roomchat",
	})
}
