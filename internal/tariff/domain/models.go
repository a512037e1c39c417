// Package domain contains persistence models and contracts for
// time-versioned tariffs.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Tariff is a monetary rate per unit for one utility, valid from
// EffectiveFrom until superseded by a newer tariff of the same utility.
// Tariffs are immutable: a rate change is a new record.
type Tariff struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	UtilityID     snowflake.ID    `json:"utility_id" gorm:"not null;index:ix_tariffs_utility"`
	Rate          decimal.Decimal `json:"rate" gorm:"type:numeric(10,4);not null"`
	EffectiveFrom time.Time       `json:"effective_from" gorm:"not null"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Tariff) TableName() string { return "tariffs" }

type Service interface {
	Set(ctx context.Context, utilityID snowflake.ID, rate decimal.Decimal, effectiveFrom time.Time) (*Tariff, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Tariff, error)
	// ResolveAt returns the tariff with the latest effective_from at or
	// before the given instant, or ErrNoTariff when none applies.
	ResolveAt(ctx context.Context, utilityID snowflake.ID, at time.Time) (*Tariff, error)
	// ListByUtility returns tariffs newest first.
	ListByUtility(ctx context.Context, utilityID snowflake.ID) ([]Tariff, error)
	// Latest returns the most recent tariff for a utility regardless of
	// effective_from, or nil when the utility has none.
	Latest(ctx context.Context, utilityID snowflake.ID) (*Tariff, error)
	// Delete removes a tariff. lastRemaining is true when the deleted
	// tariff was the sole one left for its utility; deletion still
	// succeeds but callers should flag it as risky.
	Delete(ctx context.Context, id snowflake.ID) (lastRemaining bool, err error)
	// UtilityIDsWithTariffs lists utilities that have at least one tariff.
	UtilityIDsWithTariffs(ctx context.Context) ([]snowflake.ID, error)
}

var (
	ErrInvalidRate    = errors.New("invalid_tariff_rate")
	ErrTariffNotFound = errors.New("tariff_not_found")
	ErrNoTariff       = errors.New("no_tariff_configured")
)
