// Package storage holds the durable records of the chat service: the message
// log, the room registry with its participant counter, and the user
// directory.
package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MessageRecord is one persisted chat or system message.
type MessageRecord struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	RoomID     string    `gorm:"size:64;not null;index:idx_messages_room_seq,priority:1"`
	SenderID   string    `gorm:"size:128;not null"`
	SenderName string    `gorm:"size:128;not null"`
	Body       string    `gorm:"type:text;not null"`
	Type       string    `gorm:"size:16;not null"`
	SentAt     time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (MessageRecord) TableName() string { return "messages" }

// RoomRecord is a registered room and its durable participant counter.
type RoomRecord struct {
	RoomID           string `gorm:"primaryKey;size:64"`
	Name             string `gorm:"size:128;not null"`
	Description      string `gorm:"size:512"`
	CreatedBy        string `gorm:"size:128"`
	ParticipantCount int    `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName implements gorm's tabler.
func (RoomRecord) TableName() string { return "rooms" }

// UserRecord maps an identity to its display name.
type UserRecord struct {
	Username    string `gorm:"primaryKey;size:128"`
	DisplayName string `gorm:"size:128"`
	CreatedAt   time.Time
}

// TableName implements gorm's tabler.
func (UserRecord) TableName() string { return "users" }

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(gormWriter{log: logger.With().Str("component", "storage").Logger()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	// SQLite serialises writers; one connection also keeps in-memory
	// databases alive for the lifetime of the pool.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&MessageRecord{}, &RoomRecord{}, &UserRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}
