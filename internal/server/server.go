package server

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
)

// Options assembles a Server.
type Options struct {
	Config        config.ServerConfig
	Authenticator Authenticator
	Lifecycle     *chat.Lifecycle
	Hub           *Hub
	Logger        zerolog.Logger
}

// Server bundles the HTTP listener with the hub it feeds.
type Server struct {
	http    *http.Server
	hub     *Hub
	timeout time.Duration
	log     zerolog.Logger
}

// New wires the WebSocket endpoint and the room API into an HTTP server.
// The hub must be run separately; see RunHub.
func New(opts Options) *Server {
	cfg := opts.Config
	logger := opts.Logger.With().Str("component", "server").Logger()

	ws := NewWebSocketHandler(
		opts.Authenticator,
		opts.Lifecycle,
		opts.Hub,
		NewOriginPolicy(cfg.AllowedOrigins, opts.Logger),
		ClientOptions{
			MaxMessageSize: cfg.MaxMessageSize,
			RateLimit:      cfg.RateLimit,
			Logger:         opts.Logger,
		},
		opts.Logger,
	)
	api := NewRoomAPI(opts.Lifecycle.Router(), opts.Logger)

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Server{
		http:    CreateServer(cfg.Port, SetupRoutes(ws, api)),
		hub:     opts.Hub,
		timeout: timeout,
		log:     logger,
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// RunHub runs the hub event loop until Shutdown.
func (s *Server) RunHub() {
	s.log.Info().Msg("hub started and ready to manage WebSocket connections")
	s.hub.Run()
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	return ServeListener(s.http, l, s.log)
}

// Shutdown stops accepting connections, then stops the hub, which closes the
// remaining sockets and lets their sessions leave.
func (s *Server) Shutdown() error {
	httpErr := ShutdownServer(s.http, s.timeout, s.log)
	hubErr := s.hub.Shutdown(s.timeout)
	if httpErr != nil {
		return httpErr
	}
	return hubErr
}
