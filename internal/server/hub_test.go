package server

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

func TestHubRunAndShutdown(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
	// A second shutdown is harmless.
	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubPublishAfterShutdown(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	err := hub.Publish(context.Background(), chat.Message{RoomID: "r1", Body: "late"})
	assert.ErrorIs(t, err, ErrHubClosed)

	assert.NotPanics(t, func() { hub.Deliver(chat.Message{RoomID: "r1"}) })
}

func TestHubPublishHonoursContext(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	// Without a running loop the buffer eventually fills.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		err = hub.Publish(ctx, chat.Message{RoomID: "r1"})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubRegisterValidation(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.Error(t, hub.Register(nil))

	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	sess := chat.NewSession("c1", "alice", "r1", time.Now())
	client := NewClient(nil, hub, sess, nil, ClientOptions{Logger: zerolog.Nop()})
	assert.ErrorIs(t, hub.Register(client), ErrHubClosed)
}

func TestHubRoomIsolation(t *testing.T) {
	h := newHarness(t, false, nil)
	h.dial(t, "r1", "alice")
	h.dial(t, "r1", "bob")
	h.dial(t, "r2", "carol")

	assert.Equal(t, 3, h.hub.ClientCount())
	assert.Equal(t, 2, h.hub.RoomClientCount("r1"))
	assert.Equal(t, 1, h.hub.RoomClientCount("r2"))
	assert.Equal(t, 0, h.hub.RoomClientCount("r3"))
}

func TestHubDeliverFansOutRelayedMessages(t *testing.T) {
	h := newHarness(t, false, nil)
	alice := h.dial(t, "r1", "alice")

	h.hub.Deliver(chat.Message{RoomID: "r1", Body: "from another instance", SenderID: "zed", SenderName: "zed", Type: chat.TypeChat})

	msg := receive(t, alice)
	assert.Equal(t, "from another instance", msg.Body)
	assert.Equal(t, "zed", msg.SenderID)
}
