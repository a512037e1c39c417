// Package domain contains persistence models and contracts for shared
// utilities (electricity, water, ...).
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Utility is a billable shared service with a human name and a unit label.
type Utility struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null;uniqueIndex:ux_utilities_name"`
	Unit      string       `json:"unit" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Utility) TableName() string { return "utilities" }

// DefaultUnit is used when a utility is created without an explicit unit.
const DefaultUnit = "unit"

type Service interface {
	Create(ctx context.Context, name, unit string) (*Utility, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Utility, error)
	List(ctx context.Context) ([]Utility, error)
	// Delete removes a utility. It fails with ErrUtilityInUse while any
	// meter reading or charge still references it.
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidName     = errors.New("invalid_utility_name")
	ErrDuplicateName   = errors.New("duplicate_utility_name")
	ErrUtilityNotFound = errors.New("utility_not_found")
	ErrUtilityInUse    = errors.New("utility_in_use")
)
