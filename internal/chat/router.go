package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// History limits applied by GetHistory.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// RouterDeps groups the collaborators of a Router.
type RouterDeps struct {
	Directory Directory
	Messages  MessageStore
	Rooms     RoomRegistry
	Publisher Publisher
	Presence  Presence
	Activity  Activity
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Router is the per-message entry point. It holds no per-room state of its own
// and is safe for concurrent use across rooms and identities.
type Router struct {
	directory Directory
	messages  MessageStore
	rooms     RoomRegistry
	publisher Publisher
	presence  Presence
	activity  Activity
	now       func() time.Time
	log       zerolog.Logger
}

// NewRouter creates a Router from its collaborators.
func NewRouter(deps RouterDeps) *Router {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	directory := deps.Directory
	if directory == nil {
		directory = IdentityDirectory
	}
	return &Router{
		directory: directory,
		messages:  deps.Messages,
		rooms:     deps.Rooms,
		publisher: deps.Publisher,
		presence:  deps.Presence,
		activity:  deps.Activity,
		now:       now,
		log:       deps.Logger.With().Str("component", "router").Logger(),
	}
}

// ProcessMessage handles a chat frame sent over sess. It returns true when the
// resulting message was handed to the broadcast channel. Frames whose room or
// sender disagree with the session are dropped without a reply.
func (r *Router) ProcessMessage(ctx context.Context, sess *Session, req Request) bool {
	if sess == nil {
		r.log.Warn().Str("kind", ErrorKind(ErrIdentityMismatch)).Msg("message without session dropped")
		return false
	}
	if !sess.owns(req) {
		r.log.Warn().
			Str("kind", ErrorKind(ErrIdentityMismatch)).
			Str("conn_id", sess.ID()).
			Str("session_room", sess.RoomID()).
			Str("session_user", sess.Identity()).
			Str("room_id", req.RoomID).
			Str("user_id", req.SenderID).
			Msg("message dropped")
		return false
	}

	senderName, err := r.directory.ResolveDisplayName(ctx, req.SenderID)
	if err != nil {
		r.logFailure(err, req.RoomID, req.SenderID, "display name lookup failed; message dropped")
		return false
	}

	msg := Message{
		RoomID:     req.RoomID,
		Body:       Sanitize(req.Message),
		SenderID:   req.SenderID,
		SenderName: senderName,
		Type:       TypeChat,
		Timestamp:  r.now(),
	}

	published := r.deliver(ctx, msg)
	r.recordActivity(ctx, msg.RoomID, msg.SenderID)
	return published
}

// HandleUserJoin announces identity in roomID and records its presence. It
// returns false only when the identity cannot be resolved.
func (r *Router) HandleUserJoin(ctx context.Context, roomID, identity string) bool {
	displayName, ok := r.resolveMember(ctx, roomID, identity)
	if !ok {
		return false
	}

	r.deliver(ctx, announcement(roomID, displayName, TypeJoin, r.now()))

	if r.presence != nil {
		if err := r.presence.AddMember(ctx, roomID, identity); err != nil {
			r.logFailure(err, roomID, identity, "presence add failed")
		}
	}
	r.recordActivity(ctx, roomID, identity)

	if r.rooms != nil {
		if err := r.rooms.IncrementParticipantCount(ctx, roomID); err != nil {
			r.logFailure(err, roomID, identity, "participant count increment failed")
		}
	}

	r.log.Info().Str("room_id", roomID).Str("user_id", identity).Msg("user joined room")
	return true
}

// HandleUserLeave announces that identity left roomID and removes it from the
// live presence set. The participant counter never drops below zero.
func (r *Router) HandleUserLeave(ctx context.Context, roomID, identity string) bool {
	displayName, ok := r.resolveMember(ctx, roomID, identity)
	if !ok {
		return false
	}

	r.deliver(ctx, announcement(roomID, displayName, TypeLeave, r.now()))

	if r.presence != nil {
		if err := r.presence.RemoveMember(ctx, roomID, identity); err != nil {
			r.logFailure(err, roomID, identity, "presence remove failed")
		}
	}

	if r.rooms != nil {
		if err := r.rooms.DecrementParticipantCount(ctx, roomID); err != nil {
			r.logFailure(err, roomID, identity, "participant count decrement failed")
		}
	}

	r.log.Info().Str("room_id", roomID).Str("user_id", identity).Msg("user left room")
	return true
}

// GetRoomMembers returns the identities currently present in roomID.
func (r *Router) GetRoomMembers(ctx context.Context, roomID string) []string {
	if r.presence == nil {
		return []string{}
	}
	return r.presence.Members(ctx, roomID)
}

// GetHistory returns up to limit messages of roomID, newest first. A
// non-positive limit selects DefaultHistoryLimit.
func (r *Router) GetHistory(ctx context.Context, roomID string, limit int) []Message {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if r.messages == nil {
		return []Message{}
	}

	messages, err := r.messages.QueryByRoom(ctx, roomID, limit)
	if err != nil {
		r.logFailure(err, roomID, "", "history query failed")
		return []Message{}
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages
}

// GetActivity returns the last-seen time of every recently active member.
func (r *Router) GetActivity(ctx context.Context, roomID string) map[string]time.Time {
	if r.activity == nil {
		return map[string]time.Time{}
	}
	seen, err := r.activity.LastSeen(ctx, roomID)
	if err != nil {
		r.logFailure(err, roomID, "", "activity query failed")
		return map[string]time.Time{}
	}
	return seen
}

// ParticipantCount returns the durable participant counter of roomID, or zero
// when it cannot be read. It is a display value and may lag the live set.
func (r *Router) ParticipantCount(ctx context.Context, roomID string) int {
	if r.rooms == nil {
		return 0
	}
	count, err := r.rooms.FindParticipantCount(ctx, roomID)
	if err != nil {
		r.logFailure(err, roomID, "", "participant count lookup failed")
		return 0
	}
	return count
}

func (r *Router) resolveMember(ctx context.Context, roomID, identity string) (string, bool) {
	if roomID == "" || identity == "" {
		r.log.Warn().Str("kind", ErrorKind(ErrUnresolvableIdentity)).Msg("presence change without room or identity ignored")
		return "", false
	}
	displayName, err := r.directory.ResolveDisplayName(ctx, identity)
	if err != nil {
		r.logFailure(err, roomID, identity, "display name lookup failed")
		return "", false
	}
	return displayName, true
}

// deliver persists and publishes msg independently. A persistence failure does
// not prevent the broadcast. It reports whether the publish succeeded.
func (r *Router) deliver(ctx context.Context, msg Message) bool {
	if r.messages != nil {
		if err := r.messages.Append(ctx, msg); err != nil {
			r.logFailure(err, msg.RoomID, msg.SenderID, "message persistence failed")
		}
	}

	if r.publisher == nil {
		return false
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.logFailure(err, msg.RoomID, msg.SenderID, "broadcast failed")
		return false
	}
	r.log.Debug().Str("room_id", msg.RoomID).Str("type", string(msg.Type)).Msg("message broadcast")
	return true
}

func (r *Router) recordActivity(ctx context.Context, roomID, identity string) {
	if r.activity == nil {
		return
	}
	if err := r.activity.RecordActivity(ctx, roomID, identity); err != nil {
		r.logFailure(err, roomID, identity, "activity update failed")
	}
}

func (r *Router) logFailure(err error, roomID, identity, msg string) {
	event := r.log.Error()
	if errors.Is(err, ErrUnresolvableIdentity) {
		event = r.log.Warn()
	}
	event = event.Err(err).Str("kind", ErrorKind(err)).Str("room_id", roomID)
	if identity != "" {
		event = event.Str("user_id", identity)
	}
	event.Msg(msg)
}
