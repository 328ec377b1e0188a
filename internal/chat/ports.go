package chat

import (
	"context"
	"time"
)

// Directory resolves display names for identities. Implementations return an
// error wrapping ErrUnresolvableIdentity when the identity is unknown.
type Directory interface {
	ResolveDisplayName(ctx context.Context, identity string) (string, error)
}

// MessageStore is the durable message log.
type MessageStore interface {
	Append(ctx context.Context, msg Message) error
	// QueryByRoom returns at most limit messages, most recent first.
	QueryByRoom(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// RoomRegistry owns the durable participant counter of each room.
type RoomRegistry interface {
	FindParticipantCount(ctx context.Context, roomID string) (int, error)
	IncrementParticipantCount(ctx context.Context, roomID string) error
	// DecrementParticipantCount never takes the counter below zero.
	DecrementParticipantCount(ctx context.Context, roomID string) error
}

// Publisher fans a message out to every subscriber of the message's room.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Presence is the live membership set of each room. AddMember and
// RemoveMember are called once per joined connection; an identity stays a
// member until its last connection is removed.
type Presence interface {
	AddMember(ctx context.Context, roomID, identity string) error
	RemoveMember(ctx context.Context, roomID, identity string) error
	// Members never fails; store errors yield an empty result.
	Members(ctx context.Context, roomID string) []string
}

// Activity records per-room last-seen timestamps.
type Activity interface {
	RecordActivity(ctx context.Context, roomID, identity string) error
	LastSeen(ctx context.Context, roomID string) (map[string]time.Time, error)
}

// DirectoryFunc adapts a function to the Directory interface.
type DirectoryFunc func(ctx context.Context, identity string) (string, error)

// ResolveDisplayName calls f.
func (f DirectoryFunc) ResolveDisplayName(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

// IdentityDirectory uses the identity itself as the display name. It suits
// deployments where identities are client-chosen display names.
var IdentityDirectory = DirectoryFunc(func(_ context.Context, identity string) (string, error) {
	if identity == "" {
		return "", ErrUnresolvableIdentity
	}
	return identity, nil
})
