// Package domain contains persistence models and contracts for bot users.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a chat participant. The admin flag is fixed at first contact from
// the static allow-list and never changes afterwards.
type User struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TelegramID int64        `json:"telegram_id" gorm:"not null;uniqueIndex:ux_users_telegram_id"`
	IsAdmin    bool         `json:"is_admin" gorm:"not null;default:false"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

type Service interface {
	// GetOrCreate returns the user for a chat identity, creating it on
	// first contact with the admin flag resolved from the allow-list.
	GetOrCreate(ctx context.Context, telegramID int64) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	// ListOthers returns all users except the given one, for admin
	// act-on-behalf menus.
	ListOthers(ctx context.Context, excludeID snowflake.ID) ([]User, error)
}

var (
	ErrUserNotFound = errors.New("user_not_found")
)
