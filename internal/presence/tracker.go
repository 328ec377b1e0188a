// Package presence keeps the live membership and last-seen activity of rooms
// in Redis so every server instance observes the same state.
package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// DefaultTTL bounds how long an idle room's presence and activity keys live.
const DefaultTTL = 24 * time.Hour

const (
	membersKeyPrefix     = "room:users:"
	connectionsKeyPrefix = "room:conns:"
	activityKeyPrefix    = "room:activity:"
)

// MembersKey returns the Redis key holding the member set of roomID.
func MembersKey(roomID string) string { return membersKeyPrefix + roomID }

// ConnectionsKey returns the Redis hash counting the joined connections of
// each member of roomID.
func ConnectionsKey(roomID string) string { return connectionsKeyPrefix + roomID }

// ActivityKey returns the Redis key holding the activity index of roomID.
func ActivityKey(roomID string) string { return activityKeyPrefix + roomID }

// An identity stays a member while any of its connections is joined. The
// count and the set change together inside one script.
var (
	addMemberScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return n
`)

	removeMemberScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[2], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[2], ARGV[1])
  redis.call('SREM', KEYS[1], ARGV[1])
  n = 0
end
return n
`)
)

// Tracker is the live membership set of each room. Every update for a room
// and identity runs as a single script, so concurrent updates never
// interleave.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewTracker creates a Tracker. A non-positive ttl selects DefaultTTL.
func NewTracker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "presence").Logger(),
	}
}

// AddMember records one more joined connection of identity in roomID and
// refreshes the room's expiry.
func (t *Tracker) AddMember(ctx context.Context, roomID, identity string) error {
	if roomID == "" || identity == "" {
		return nil
	}
	keys := []string{MembersKey(roomID), ConnectionsKey(roomID)}
	if err := addMemberScript.Run(ctx, t.client, keys, identity, t.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("%w: add member: %v", chat.ErrStoreUnavailable, err)
	}
	return nil
}

// RemoveMember releases one joined connection of identity in roomID. The
// identity leaves the set when its last connection is released. Removing an
// absent member is a no-op.
func (t *Tracker) RemoveMember(ctx context.Context, roomID, identity string) error {
	if roomID == "" || identity == "" {
		return nil
	}
	keys := []string{MembersKey(roomID), ConnectionsKey(roomID)}
	if err := removeMemberScript.Run(ctx, t.client, keys, identity).Err(); err != nil {
		return fmt.Errorf("%w: remove member: %v", chat.ErrStoreUnavailable, err)
	}
	return nil
}

// Members returns the identities present in roomID in lexical order. Store
// failures are logged and yield an empty slice.
func (t *Tracker) Members(ctx context.Context, roomID string) []string {
	if roomID == "" {
		return []string{}
	}
	members, err := t.client.SMembers(ctx, MembersKey(roomID)).Result()
	if err != nil {
		t.log.Error().Err(err).Str("kind", "store_unavailable").Str("room_id", roomID).Msg("member lookup failed")
		return []string{}
	}
	sort.Strings(members)
	return members
}
