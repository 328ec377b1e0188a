package integration

import (
	"net/http"
	"testing"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/storage"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

type membersBody struct {
	RoomID           string   `json:"roomId"`
	Users            []string `json:"users"`
	Count            int      `json:"count"`
	ParticipantCount int      `json:"participantCount"`
}

// TestRoomReadAPI drives a room over WebSocket and reads it back over HTTP.
func TestRoomReadAPI(t *testing.T) {
	stack := testhelpers.NewStack(t, testhelpers.Options{AutoJoin: true})

	if _, err := stack.Rooms.Create(t.Context(), storage.RoomRecord{RoomID: room, Name: "Lobby"}); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	alice := stack.ConnectAs(t, room, "alice")
	testhelpers.Receive(t, alice)
	testhelpers.Send(t, alice, room, "alice", chat.TypeChat, "first")
	testhelpers.Receive(t, alice)
	testhelpers.Send(t, alice, room, "alice", chat.TypeChat, "second")
	testhelpers.Receive(t, alice)

	var health map[string]string
	resp := stack.GetJSON(t, "/api/health", &health)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if health["status"] != "ok" {
		t.Errorf("Expected healthy status, got %v", health)
	}

	var history []chat.Message
	resp = stack.GetJSON(t, "/api/rooms/lobby/history?limit=2", &history)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if len(history) != 2 || history[0].Body != "second" || history[1].Body != "first" {
		t.Errorf("Expected the two chat messages newest first, got %+v", history)
	}

	resp = stack.GetJSON(t, "/api/rooms/lobby/history?limit=-1", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)

	var members membersBody
	resp = stack.GetJSON(t, "/api/rooms/lobby/users", &members)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if members.Count != 1 || len(members.Users) != 1 || members.Users[0] != "alice" {
		t.Errorf("Expected alice to be present, got %+v", members)
	}
	if members.ParticipantCount != 1 {
		t.Errorf("Expected participant count 1, got %d", members.ParticipantCount)
	}

	var activity struct {
		Activity map[string]any `json:"activity"`
	}
	resp = stack.GetJSON(t, "/api/rooms/lobby/activity", &activity)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if _, ok := activity.Activity["alice"]; !ok {
		t.Errorf("Expected activity for alice, got %v", activity.Activity)
	}

	_ = alice.Close()
	testhelpers.WaitFor(t, "participant count to drop", func() bool {
		count, err := stack.Rooms.FindParticipantCount(t.Context(), room)
		return err == nil && count == 0
	})
}
