// Package domain defines balance and statement views over charges and
// payments. The ledger itself is append-only; this package only aggregates.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Balance is payments minus charges; positive means overpayment.
type Balance struct {
	UserID       snowflake.ID
	TotalCharged decimal.Decimal
	TotalPaid    decimal.Decimal
	Net          decimal.Decimal
}

// ChargeLine is one charge in a statement, with its utility name resolved.
type ChargeLine struct {
	UtilityName string
	Amount      decimal.Decimal
	PeriodEnd   time.Time
}

// PaymentLine is one payment in a statement.
type PaymentLine struct {
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Statement is the recent activity plus the running balance for one user.
type Statement struct {
	Charges  []ChargeLine
	Payments []PaymentLine
	Balance  Balance
}

// UserBalance pairs a chat identity with its balance, for admin overviews.
type UserBalance struct {
	TelegramID int64
	Net        decimal.Decimal
}

type Service interface {
	Balance(ctx context.Context, userID snowflake.ID) (Balance, error)
	Statement(ctx context.Context, userID snowflake.ID, limit int) (Statement, error)
	// ListBalances returns every user's balance, oldest user first.
	ListBalances(ctx context.Context) ([]UserBalance, error)
}
