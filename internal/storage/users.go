package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// UserDirectory resolves display names from the users table.
type UserDirectory struct {
	db *gorm.DB
}

// NewUserDirectory creates a UserDirectory on db.
func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// ResolveDisplayName returns the display name of identity, or the identity
// itself when the user has none.
func (d *UserDirectory) ResolveDisplayName(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", chat.ErrUnresolvableIdentity
	}

	var user UserRecord
	err := d.db.WithContext(ctx).Where("username = ?", identity).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s", chat.ErrUnresolvableIdentity, identity)
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolve user: %v", chat.ErrStoreUnavailable, err)
	}

	if name := strings.TrimSpace(user.DisplayName); name != "" {
		return name, nil
	}
	return user.Username, nil
}

// Add registers username or updates its display name.
func (d *UserDirectory) Add(ctx context.Context, username, displayName string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}
	user := UserRecord{Username: username, DisplayName: strings.TrimSpace(displayName)}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("%w: add user: %v", chat.ErrStoreUnavailable, err)
	}
	return nil
}
