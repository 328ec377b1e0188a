package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// MessageStore is the SQL-backed message log.
type MessageStore struct {
	db *gorm.DB
}

// NewMessageStore creates a MessageStore on db.
func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append persists msg.
func (s *MessageStore) Append(ctx context.Context, msg chat.Message) error {
	record := MessageRecord{
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		Type:       string(msg.Type),
		SentAt:     msg.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("%w: append message: %v", chat.ErrStoreUnavailable, err)
	}
	return nil
}

// QueryByRoom returns up to limit messages of roomID in reverse insertion
// order.
func (s *MessageStore) QueryByRoom(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %v", chat.ErrStoreUnavailable, err)
	}

	messages := make([]chat.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, chat.Message{
			RoomID:     r.RoomID,
			Body:       r.Body,
			SenderID:   r.SenderID,
			SenderName: r.SenderName,
			Type:       chat.MessageType(r.Type),
			Timestamp:  r.SentAt,
		})
	}
	return messages, nil
}
