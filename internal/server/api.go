package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// RoomAPI serves read-only room queries over HTTP.
type RoomAPI struct {
	router *chat.Router
	log    zerolog.Logger
}

// NewRoomAPI creates a RoomAPI backed by router.
func NewRoomAPI(router *chat.Router, logger zerolog.Logger) *RoomAPI {
	return &RoomAPI{
		router: router,
		log:    logger.With().Str("component", "api").Logger(),
	}
}

type membersResponse struct {
	RoomID           string   `json:"roomId"`
	Users            []string `json:"users"`
	Count            int      `json:"count"`
	ParticipantCount int      `json:"participantCount"`
}

type activityResponse struct {
	RoomID   string               `json:"roomId"`
	Activity map[string]time.Time `json:"activity"`
}

func roomIDFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomID := strings.TrimSpace(r.PathValue("roomId"))
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "room id is required")
		return "", false
	}
	return roomID, true
}

// History handles GET /api/rooms/{roomId}/history.
func (a *RoomAPI) History(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, a.router.GetHistory(r.Context(), roomID, limit))
}

// Members handles GET /api/rooms/{roomId}/users.
func (a *RoomAPI) Members(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}

	users := a.router.GetRoomMembers(r.Context(), roomID)
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, membersResponse{
		RoomID:           roomID,
		Users:            users,
		Count:            len(users),
		ParticipantCount: a.router.ParticipantCount(r.Context(), roomID),
	})
}

// Activity handles GET /api/rooms/{roomId}/activity.
func (a *RoomAPI) Activity(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, activityResponse{
		RoomID:   roomID,
		Activity: a.router.GetActivity(r.Context(), roomID),
	})
}
