package chat

import (
	"context"

	"github.com/rs/zerolog"
)

// Lifecycle observes session establishment and teardown and dispatches
// inbound frames. Explicit and implicit leaves share one path guarded by the
// session state, so a leave is announced at most once per join.
//
// The transport calls Connected, Dispatch and Closed for one session from a
// single goroutine, Connected first and Closed last.
type Lifecycle struct {
	router   *Router
	autoJoin bool
	log      zerolog.Logger
}

// NewLifecycle creates a Lifecycle. With autoJoin set the join is performed
// as soon as the connection is established instead of on an explicit JOIN
// frame.
func NewLifecycle(router *Router, autoJoin bool, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		router:   router,
		autoJoin: autoJoin,
		log:      logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Router returns the router the lifecycle dispatches to.
func (l *Lifecycle) Router() *Router { return l.router }

// Connected is called once the session is established.
func (l *Lifecycle) Connected(ctx context.Context, sess *Session) {
	if sess == nil || sess.Identity() == "" || sess.RoomID() == "" {
		return
	}
	l.log.Info().
		Str("user_id", sess.Identity()).
		Str("room_id", sess.RoomID()).
		Str("conn_id", sess.ID()).
		Msg("connection established")

	if l.autoJoin {
		l.join(ctx, sess)
	}
}

// Closed is called once the connection is gone. It performs the implicit
// leave when the session is still joined and closes the session for good.
// A session that never joined, or already left, has no membership to remove.
func (l *Lifecycle) Closed(ctx context.Context, sess *Session) {
	if sess == nil || sess.Identity() == "" || sess.RoomID() == "" {
		return
	}
	l.log.Info().
		Str("user_id", sess.Identity()).
		Str("room_id", sess.RoomID()).
		Str("conn_id", sess.ID()).
		Msg("connection closed")

	if !sess.markClosed() {
		l.log.Debug().Str("conn_id", sess.ID()).Msg("no active join; nothing to leave")
		return
	}
	l.router.HandleUserLeave(ctx, sess.RoomID(), sess.Identity())
}

// Dispatch routes an inbound frame by its declared type. It returns true when
// the frame produced a broadcast or presence change.
func (l *Lifecycle) Dispatch(ctx context.Context, sess *Session, req Request) bool {
	switch req.Type {
	case TypeChat, "":
		return l.router.ProcessMessage(ctx, sess, req)
	case TypeJoin, TypeLeave:
		if sess == nil || !sess.owns(req) {
			l.log.Warn().
				Str("kind", ErrorKind(ErrIdentityMismatch)).
				Str("type", string(req.Type)).
				Str("room_id", req.RoomID).
				Str("user_id", req.SenderID).
				Msg("presence frame dropped")
			return false
		}
		if req.Type == TypeJoin {
			return l.join(ctx, sess)
		}
		return l.leave(ctx, sess)
	default:
		l.log.Warn().Str("type", string(req.Type)).Msg("unsupported message type dropped")
		return false
	}
}

func (l *Lifecycle) join(ctx context.Context, sess *Session) bool {
	prev, ok := sess.markJoined()
	if !ok {
		l.log.Debug().Str("conn_id", sess.ID()).Msg("join ignored; session already joined or closed")
		return false
	}
	if !l.router.HandleUserJoin(ctx, sess.RoomID(), sess.Identity()) {
		sess.state.CompareAndSwap(stateJoined, prev)
		return false
	}
	return true
}

func (l *Lifecycle) leave(ctx context.Context, sess *Session) bool {
	if !sess.markLeft() {
		l.log.Debug().Str("conn_id", sess.ID()).Msg("leave ignored; session not joined")
		return false
	}
	return l.router.HandleUserLeave(ctx, sess.RoomID(), sess.Identity())
}
