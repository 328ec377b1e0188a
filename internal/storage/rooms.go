package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ErrRoomNotFound is returned for operations on an unregistered room.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomExists is returned when registering a room id twice.
var ErrRoomExists = errors.New("room already exists")

// RoomRegistry is the SQL-backed room registry.
type RoomRegistry struct {
	db *gorm.DB
}

// NewRoomRegistry creates a RoomRegistry on db.
func NewRoomRegistry(db *gorm.DB) *RoomRegistry {
	return &RoomRegistry{db: db}
}

// Create registers a room. An empty RoomID is replaced by a fresh
// eight-character id.
func (r *RoomRegistry) Create(ctx context.Context, room RoomRecord) (RoomRecord, error) {
	room.Name = strings.TrimSpace(room.Name)
	if room.Name == "" {
		return RoomRecord{}, errors.New("room name is required")
	}
	room.ParticipantCount = 0

	db := r.db.WithContext(ctx)
	if room.RoomID == "" {
		id, err := r.unusedRoomID(db)
		if err != nil {
			return RoomRecord{}, err
		}
		room.RoomID = id
	} else if exists, err := roomExists(db, room.RoomID); err != nil {
		return RoomRecord{}, err
	} else if exists {
		return RoomRecord{}, fmt.Errorf("%w: %s", ErrRoomExists, room.RoomID)
	}

	if err := db.Create(&room).Error; err != nil {
		return RoomRecord{}, fmt.Errorf("%w: create room: %v", chat.ErrStoreUnavailable, err)
	}
	return room, nil
}

// Find returns the record of roomID.
func (r *RoomRegistry) Find(ctx context.Context, roomID string) (RoomRecord, error) {
	var room RoomRecord
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoomRecord{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return RoomRecord{}, fmt.Errorf("%w: find room: %v", chat.ErrStoreUnavailable, err)
	}
	return room, nil
}

// List returns every registered room, most recently updated first.
func (r *RoomRegistry) List(ctx context.Context) ([]RoomRecord, error) {
	var rooms []RoomRecord
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("%w: list rooms: %v", chat.ErrStoreUnavailable, err)
	}
	return rooms, nil
}

// FindParticipantCount returns the participant counter of roomID.
func (r *RoomRegistry) FindParticipantCount(ctx context.Context, roomID string) (int, error) {
	room, err := r.Find(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return room.ParticipantCount, nil
}

// IncrementParticipantCount adds one to the counter of roomID.
func (r *RoomRegistry) IncrementParticipantCount(ctx context.Context, roomID string) error {
	result := r.db.WithContext(ctx).
		Model(&RoomRecord{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"participant_count": gorm.Expr("participant_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: increment participants: %v", chat.ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return nil
}

// DecrementParticipantCount subtracts one from the counter of roomID unless it
// is already zero.
func (r *RoomRegistry) DecrementParticipantCount(ctx context.Context, roomID string) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&RoomRecord{}).
		Where("room_id = ? AND participant_count > 0", roomID).
		Updates(map[string]interface{}{
			"participant_count": gorm.Expr("participant_count - 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: decrement participants: %v", chat.ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	exists, err := roomExists(db, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return nil
}

func (r *RoomRegistry) unusedRoomID(db *gorm.DB) (string, error) {
	for {
		id := uuid.NewString()[:8]
		exists, err := roomExists(db, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

func roomExists(db *gorm.DB, roomID string) (bool, error) {
	var n int64
	if err := db.Model(&RoomRecord{}).Where("room_id = ?", roomID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("%w: room lookup: %v", chat.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
