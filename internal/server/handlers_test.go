package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","service":"roomchat"}`, rr.Body.String())
}

func TestHealthRoute(t *testing.T) {
	h := newHarness(t, false, nil)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, h.ts.URL+"/api/health", &body))
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Post(h.ts.URL+"/api/health", "text/plain", http.NoBody)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRoomAPI(t *testing.T) {
	h := newHarness(t, false, nil)
	alice := h.dial(t, "r1", "alice")
	bob := h.dial(t, "r1", "bob")

	send(t, alice, join("r1", "alice"))
	receive(t, bob)
	send(t, bob, join("r1", "bob"))
	receive(t, bob)
	for _, body := range []string{"first", "second", "third"} {
		send(t, alice, say("r1", "alice", body))
		receive(t, bob)
	}

	t.Run("users", func(t *testing.T) {
		var body membersResponse
		require.Equal(t, http.StatusOK, getJSON(t, h.ts.URL+"/api/rooms/r1/users", &body))
		assert.Equal(t, "r1", body.RoomID)
		assert.Equal(t, []string{"alice", "bob"}, body.Users)
		assert.Equal(t, 2, body.Count)
	})

	t.Run("history newest first", func(t *testing.T) {
		var history []chat.Message
		require.Equal(t, http.StatusOK, getJSON(t, h.ts.URL+"/api/rooms/r1/history?limit=2", &history))
		require.Len(t, history, 2)
		assert.Equal(t, "third", history[0].Body)
		assert.Equal(t, "second", history[1].Body)
	})

	t.Run("history default limit", func(t *testing.T) {
		var history []chat.Message
		require.Equal(t, http.StatusOK, getJSON(t, h.ts.URL+"/api/rooms/r1/history", &history))
		assert.Len(t, history, 5)
	})

	t.Run("history bad limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, h.ts.URL+"/api/rooms/r1/history?limit=abc", nil))
		assert.Equal(t, http.StatusBadRequest, getJSON(t, h.ts.URL+"/api/rooms/r1/history?limit=-1", nil))
	})

	t.Run("activity", func(t *testing.T) {
		var body activityResponse
		require.Equal(t, http.StatusOK, getJSON(t, h.ts.URL+"/api/rooms/r1/activity", &body))
		require.Contains(t, body.Activity, "alice")
		require.Contains(t, body.Activity, "bob")
		assert.WithinDuration(t, time.Now(), body.Activity["alice"], time.Minute)
	})

	t.Run("unknown room", func(t *testing.T) {
		var body membersResponse
		require.Equal(t, http.StatusOK, getJSON(t, h.ts.URL+"/api/rooms/nowhere/users", &body))
		assert.Empty(t, body.Users)
		assert.NotNil(t, body.Users)
	})
}
