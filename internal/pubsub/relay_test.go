package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startRelay(t *testing.T, relay *Relay) chan chat.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan chat.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- relay.Run(ctx, func(m chat.Message) { received <- m })
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("relay did not stop")
		}
	})

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never subscribed")
	}
	return received
}

func TestRelayCrossInstanceDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	instanceA := NewRelay(newClient(t, mr), zerolog.Nop())
	instanceB := NewRelay(newClient(t, mr), zerolog.Nop())

	gotA := startRelay(t, instanceA)
	gotB := startRelay(t, instanceB)

	sent := chat.Message{
		RoomID:     "r1",
		Body:       "hello",
		SenderID:   "alice",
		SenderName: "Alice",
		Type:       chat.TypeChat,
		Timestamp:  time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, instanceA.Publish(context.Background(), sent))

	for _, got := range []chan chat.Message{gotA, gotB} {
		select {
		case m := <-got:
			assert.Equal(t, sent.Body, m.Body)
			assert.Equal(t, sent.RoomID, m.RoomID)
			assert.Equal(t, sent.SenderName, m.SenderName)
			assert.True(t, sent.Timestamp.Equal(m.Timestamp))
		case <-time.After(2 * time.Second):
			t.Fatal("message not relayed")
		}
	}
}

func TestRelayPreservesPerRoomOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := NewRelay(newClient(t, mr), zerolog.Nop())
	got := startRelay(t, relay)

	ctx := context.Background()
	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, relay.Publish(ctx, chat.Message{RoomID: "r1", Body: body, Type: chat.TypeChat}))
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case m := <-got:
			assert.Equal(t, want, m.Body)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %q", want)
		}
	}
}

func TestRelayDropsUndecodablePayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	relay := NewRelay(client, zerolog.Nop())
	got := startRelay(t, relay)

	ctx := context.Background()
	require.NoError(t, client.Publish(ctx, Channel("r1"), "{not json").Err())
	require.NoError(t, relay.Publish(ctx, chat.Message{RoomID: "r1", Body: "after", Type: chat.TypeChat}))

	select {
	case m := <-got:
		assert.Equal(t, "after", m.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("valid message not relayed")
	}
}

func TestRelayPublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := NewRelay(newClient(t, mr), zerolog.Nop())
	mr.Close()

	err := relay.Publish(context.Background(), chat.Message{RoomID: "r1", Body: "x"})
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
}
