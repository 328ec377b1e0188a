// Package pubsub carries room broadcasts between server instances over Redis
// pub/sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const channelPrefix = "chat:room:"

// Channel returns the pub/sub channel of roomID.
func Channel(roomID string) string { return channelPrefix + roomID }

// Relay publishes room messages to Redis and delivers every message published
// by any instance to a local sink.
type Relay struct {
	client *redis.Client
	log    zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRelay creates a Relay on client.
func NewRelay(client *redis.Client, logger zerolog.Logger) *Relay {
	return &Relay{
		client: client,
		log:    logger.With().Str("component", "relay").Logger(),
		ready:  make(chan struct{}),
	}
}

// Publish sends msg on the channel of its room.
func (r *Relay) Publish(ctx context.Context, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.Publish(ctx, Channel(msg.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", chat.ErrStoreUnavailable, err)
	}
	return nil
}

// Ready is closed once Run holds an active subscription.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Run subscribes to every room channel and calls deliver for each message
// until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, deliver func(chat.Message)) error {
	sub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe: %v", chat.ErrStoreUnavailable, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info().Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay stopped")
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg chat.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn().Err(err).Str("channel", m.Channel).Msg("undecodable relay payload dropped")
				continue
			}
			if msg.RoomID == "" {
				msg.RoomID = strings.TrimPrefix(m.Channel, channelPrefix)
			}
			deliver(msg)
		}
	}
}
