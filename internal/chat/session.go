package chat

import (
	"sync/atomic"
	"time"
)

const (
	stateConnected int32 = iota
	stateJoined
	stateLeft
	stateClosed
)

// Session binds one connection to one identity and one room. Identity and
// room never change after construction.
type Session struct {
	id            string
	identity      string
	roomID        string
	establishedAt time.Time
	state         atomic.Int32
}

// NewSession creates a session for the connection identified by connID.
func NewSession(connID, identity, roomID string, establishedAt time.Time) *Session {
	return &Session{
		id:            connID,
		identity:      identity,
		roomID:        roomID,
		establishedAt: establishedAt,
	}
}

// ID returns the connection id the session is bound to.
func (s *Session) ID() string { return s.id }

// Identity returns the user identity resolved at handshake time.
func (s *Session) Identity() string { return s.identity }

// RoomID returns the room the session was admitted to.
func (s *Session) RoomID() string { return s.roomID }

// EstablishedAt returns the handshake time.
func (s *Session) EstablishedAt() time.Time { return s.establishedAt }

// Left reports whether the session has left its room, explicitly or by
// closing.
func (s *Session) Left() bool { return s.state.Load() >= stateLeft }

// owns reports whether req claims exactly this session's identity and room.
func (s *Session) owns(req Request) bool {
	return req.RoomID == s.roomID && req.SenderID == s.identity
}

// markJoined moves the session into the joined state. It returns the previous
// state and false when the session is already joined or closed.
func (s *Session) markJoined() (int32, bool) {
	for {
		prev := s.state.Load()
		if prev == stateJoined || prev == stateClosed {
			return prev, false
		}
		if s.state.CompareAndSwap(prev, stateJoined) {
			return prev, true
		}
	}
}

// markLeft moves a joined session to the left state. It returns false when
// the session is not joined.
func (s *Session) markLeft() bool {
	return s.state.CompareAndSwap(stateJoined, stateLeft)
}

// markClosed moves the session into its terminal state and reports whether
// it was joined at that moment. A closed session can never join again.
func (s *Session) markClosed() bool {
	return s.state.Swap(stateClosed) == stateJoined
}
