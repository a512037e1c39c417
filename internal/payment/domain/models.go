// Package domain contains persistence models and contracts for manually
// recorded payments.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Payment is an append-only record of money received from a user.
type Payment struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID    `json:"user_id" gorm:"not null;index:ix_payments_user"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Timestamp time.Time       `json:"timestamp" gorm:"not null"`
	Note      string          `json:"note" gorm:"type:text"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

type Service interface {
	Record(ctx context.Context, userID snowflake.ID, amount decimal.Decimal, timestamp time.Time, note string) (*Payment, error)
	ListRecent(ctx context.Context, userID snowflake.ID, limit int) ([]Payment, error)
}

var (
	ErrInvalidAmount = errors.New("invalid_payment_amount")
)
