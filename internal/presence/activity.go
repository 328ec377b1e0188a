package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ActivityRecorder keeps a sorted index of identities per room scored by the
// time they were last seen.
type ActivityRecorder struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewActivityRecorder creates an ActivityRecorder. A non-positive ttl selects
// DefaultTTL.
func NewActivityRecorder(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ActivityRecorder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ActivityRecorder{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		log:    logger.With().Str("component", "activity").Logger(),
	}
}

// RecordActivity stamps identity as seen now in roomID and refreshes the
// index expiry. Repeated calls keep a single entry with the newest score.
func (a *ActivityRecorder) RecordActivity(ctx context.Context, roomID, identity string) error {
	if roomID == "" || identity == "" {
		return nil
	}
	key := ActivityKey(roomID)
	score := float64(a.now().UnixMilli())
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: identity})
		pipe.Expire(ctx, key, a.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: record activity: %v", chat.ErrStoreUnavailable, err)
	}
	a.log.Debug().Str("room_id", roomID).Str("user_id", identity).Msg("activity recorded")
	return nil
}

// LastSeen returns the last-seen time of every identity in the index of
// roomID.
func (a *ActivityRecorder) LastSeen(ctx context.Context, roomID string) (map[string]time.Time, error) {
	entries, err := a.client.ZRangeWithScores(ctx, ActivityKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: activity lookup: %v", chat.ErrStoreUnavailable, err)
	}
	seen := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		identity, ok := entry.Member.(string)
		if !ok {
			continue
		}
		seen[identity] = time.UnixMilli(int64(entry.Score))
	}
	return seen, nil
}
