// Package domain contains persistence models and contracts for the billing
// engine: cumulative meter readings and the charges derived from them.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MeterReading is one cumulative meter value for a (user, utility) pair.
// Confirmed readings for a pair form a non-decreasing sequence ordered by
// timestamp; that invariant is enforced at write time by the billing engine.
type MeterReading struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID    `json:"user_id" gorm:"not null;uniqueIndex:ux_readings_user_utility_ts,priority:1"`
	UtilityID snowflake.ID    `json:"utility_id" gorm:"not null;uniqueIndex:ux_readings_user_utility_ts,priority:2"`
	Value     decimal.Decimal `json:"value" gorm:"type:numeric(12,3);not null"`
	Timestamp time.Time       `json:"timestamp" gorm:"not null;uniqueIndex:ux_readings_user_utility_ts,priority:3"`
	Confirmed bool            `json:"confirmed" gorm:"not null;default:false"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (MeterReading) TableName() string { return "meter_readings" }

// Charge is the monetary obligation derived from one consumption delta.
// Charges are append-only; the unique (user, utility, period_end) index makes
// creation idempotent against re-delivery of the same reading event.
type Charge struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID    `json:"user_id" gorm:"not null;uniqueIndex:ux_charges_user_utility_period_end,priority:1"`
	UtilityID   snowflake.ID    `json:"utility_id" gorm:"not null;uniqueIndex:ux_charges_user_utility_period_end,priority:2"`
	PeriodStart time.Time       `json:"period_start" gorm:"not null"`
	PeriodEnd   time.Time       `json:"period_end" gorm:"not null;uniqueIndex:ux_charges_user_utility_period_end,priority:3"`
	Consumption decimal.Decimal `json:"consumption" gorm:"type:numeric(12,3);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Charge) TableName() string { return "charges" }

// MoneyPrecision is the number of decimal places charge amounts are rounded
// to. Rounding is half-up (shopspring decimal.Round), applied consistently.
const MoneyPrecision = 2

type OutcomeKind string

const (
	// OutcomeBaseline: first confirmed reading for the pair; stored, not billed.
	OutcomeBaseline OutcomeKind = "baseline"
	// OutcomeNoChange: zero consumption; nothing billed.
	OutcomeNoChange OutcomeKind = "no_change"
	// OutcomeCharged: a charge was created alongside the reading.
	OutcomeCharged OutcomeKind = "charged"
)

// Outcome describes what RecordReading did.
type Outcome struct {
	Kind    OutcomeKind
	Reading *MeterReading
	Charge  *Charge
}

type RecordReadingRequest struct {
	UserID    snowflake.ID
	UtilityID snowflake.ID
	Value     decimal.Decimal
	Timestamp time.Time
}

type Service interface {
	// RecordReading validates a new cumulative reading against the last
	// confirmed one, resolves the applicable tariff, and persists the
	// reading together with the derived charge in one transaction.
	RecordReading(ctx context.Context, req RecordReadingRequest) (Outcome, error)
	// LastConfirmed returns the most recent confirmed reading for the
	// pair, or nil when none exists.
	LastConfirmed(ctx context.Context, userID, utilityID snowflake.ID) (*MeterReading, error)
}

var (
	ErrInvalidValue     = errors.New("invalid_reading_value")
	ErrMeterDecreased   = errors.New("meter_value_decreased")
	ErrDuplicateReading = errors.New("duplicate_reading")
	ErrNoTariff         = errors.New("no_tariff_configured")
)
