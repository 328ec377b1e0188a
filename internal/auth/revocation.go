package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// RedisRevocationList stores revoked tokens as self-expiring Redis keys. Keys
// are derived from a digest of the token so raw credentials never reach the
// store.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
}

// NewRedisRevocationList creates a revocation list on client.
func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{
		client: client,
		prefix: "revoked:token:",
	}
}

func (l *RedisRevocationList) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return l.prefix + hex.EncodeToString(sum[:])
}

// Revoke records token for ttl.
func (l *RedisRevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: revoke token: %v", chat.ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether token is currently recorded.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: revocation lookup: %v", chat.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
