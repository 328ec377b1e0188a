package chat

import (
	"html"
	"time"
)

// MessageType classifies a message exchanged in a room.
type MessageType string

// Supported message types.
const (
	TypeChat   MessageType = "CHAT"
	TypeJoin   MessageType = "JOIN"
	TypeLeave  MessageType = "LEAVE"
	TypeSystem MessageType = "SYSTEM"
)

// SystemSenderID and SystemSenderName identify announcements synthesized by
// the presence bookkeeping rather than sent by a participant.
const (
	SystemSenderID   = "SYSTEM"
	SystemSenderName = "System"
)

// Message is the immutable unit persisted to the message log and fanned out to
// room subscribers.
type Message struct {
	RoomID     string      `json:"roomId"`
	Body       string      `json:"message"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Type       MessageType `json:"messageType"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Request is an inbound frame as declared by the client. Nothing in it is
// trusted until it has been checked against the session.
type Request struct {
	RoomID   string      `json:"roomId"`
	Message  string      `json:"message"`
	SenderID string      `json:"senderId"`
	Type     MessageType `json:"messageType"`
}

func announcement(roomID, displayName string, kind MessageType, at time.Time) Message {
	// Display names may be client-chosen, so they are escaped like bodies.
	name := html.EscapeString(displayName)
	body := name + " joined the room."
	if kind == TypeLeave {
		body = name + " left the room."
	}
	return Message{
		RoomID:     roomID,
		Body:       body,
		SenderID:   SystemSenderID,
		SenderName: SystemSenderName,
		Type:       kind,
		Timestamp:  at,
	}
}
