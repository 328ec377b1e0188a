package cli

import (
	"context"
	"fmt"
	"net"
	"sync"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/pubsub"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/storage"
)

func newServeCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.load(cmd)
			if err != nil {
				return err
			}

			l, err := net.Listen("tcp", cfg.Server.Port)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Port, err)
			}
			return runServe(cmd.Context(), cfg, logger, l)
		},
	}

	cmd.Flags().String("port", "", "listen address, e.g. :8080")
	cmd.Flags().String("auth-mode", "", "handshake authentication mode (token or name)")
	cmd.Flags().Bool("auto-join", false, "join the room as soon as a connection is established")
	cmd.Flags().String("redis-addr", "", "redis address")
	cmd.Flags().String("db", "", "SQLite database DSN")
	s.bind(cmd, "server.port", "port")
	s.bind(cmd, "auth.mode", "auth-mode")
	s.bind(cmd, "server.auto_join", "auto-join")
	s.bind(cmd, "redis.addr", "redis-addr")
	s.bind(cmd, "database.dsn", "db")

	return cmd
}

// runServe runs the server on l until ctx is cancelled, a component fails or
// the process receives a termination signal. Shutdown stops the HTTP server
// first, then the hub, then the relay.
func runServe(ctx context.Context, cfg config.Config, logger zerolog.Logger, l net.Listener) error {
	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		_ = l.Close()
		return err
	}
	defer func() { _ = storage.Close(db) }()

	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		_ = l.Close()
		return err
	}
	defer func() { _ = rdb.Close() }()

	hub := server.NewHub(logger)

	var publisher chat.Publisher = hub
	var relay *pubsub.Relay
	if cfg.Redis.Relay {
		relay = pubsub.NewRelay(rdb, logger)
		publisher = relay
	}

	var directory chat.Directory = chat.IdentityDirectory
	var verifier auth.IdentityVerifier
	if cfg.Auth.Mode == config.AuthModeToken {
		directory = storage.NewUserDirectory(db)
		tokens, err := newTokenValidator(cfg.Auth, auth.NewRedisRevocationList(rdb), logger)
		if err != nil {
			_ = l.Close()
			return err
		}
		verifier = tokens
	}

	router := chat.NewRouter(chat.RouterDeps{
		Directory: directory,
		Messages:  storage.NewMessageStore(db),
		Rooms:     storage.NewRoomRegistry(db),
		Publisher: publisher,
		Presence:  presence.NewTracker(rdb, cfg.Presence.TTL, logger),
		Activity:  presence.NewActivityRecorder(rdb, cfg.Presence.TTL, logger),
		Logger:    logger,
	})
	lifecycle := chat.NewLifecycle(router, cfg.Server.AutoJoin, logger)

	authn, err := auth.NewAuthenticator(auth.Mode(cfg.Auth.Mode), verifier, logger)
	if err != nil {
		_ = l.Close()
		return err
	}

	srv := server.New(server.Options{
		Config:        cfg.Server,
		Authenticator: authn,
		Lifecycle:     lifecycle,
		Hub:           hub,
		Logger:        logger,
	})

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	var once sync.Once
	var shutdownErr error
	shutdown := func() error {
		once.Do(func() {
			shutdownErr = srv.Shutdown()
			stopRelay()
		})
		return shutdownErr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.RunHub()
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(relayCtx, hub.Deliver)
		})
		select {
		case <-relay.Ready():
		case <-gctx.Done():
			_ = l.Close()
			_ = shutdown()
			return g.Wait()
		}
	}
	g.Go(func() error {
		return srv.Serve(l)
	})

	logger.Info().
		Str("addr", l.Addr().String()).
		Str("auth_mode", cfg.Auth.Mode).
		Bool("relay", relay != nil).
		Bool("auto_join", cfg.Server.AutoJoin).
		Msg("roomchat started")

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout, map[string]gfshutdown.Operation{
		"roomchat": func(context.Context) error {
			return shutdown()
		},
	})

	select {
	case code := <-wait:
		if code != 0 {
			logger.Warn().Int("exit_code", code).Msg("shutdown finished with errors")
		}
	case <-gctx.Done():
		logger.Info().Msg("stopping roomchat")
		_ = shutdown()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return shutdownErr
}
