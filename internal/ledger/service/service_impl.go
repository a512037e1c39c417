package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/utilibot/utilibot/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("ledger.service"),
	}
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (ledgerdomain.Balance, error) {
	charged, err := s.sum(ctx, `SELECT COALESCE(SUM(amount), 0) FROM charges WHERE user_id = ?`, userID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	paid, err := s.sum(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE user_id = ?`, userID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	return ledgerdomain.Balance{
		UserID:       userID,
		TotalCharged: charged,
		TotalPaid:    paid,
		Net:          paid.Sub(charged),
	}, nil
}

func (s *Service) Statement(ctx context.Context, userID snowflake.ID, limit int) (ledgerdomain.Statement, error) {
	if limit <= 0 {
		limit = 5
	}

	var charges []ledgerdomain.ChargeLine
	err := s.db.WithContext(ctx).Raw(
		`SELECT u.name AS utility_name, c.amount, c.period_end
		 FROM charges c JOIN utilities u ON u.id = c.utility_id
		 WHERE c.user_id = ?
		 ORDER BY c.period_end DESC
		 LIMIT ?`,
		userID, limit,
	).Scan(&charges).Error
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	var payments []ledgerdomain.PaymentLine
	err = s.db.WithContext(ctx).Raw(
		`SELECT amount, timestamp
		 FROM payments
		 WHERE user_id = ?
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		userID, limit,
	).Scan(&payments).Error
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	return ledgerdomain.Statement{
		Charges:  charges,
		Payments: payments,
		Balance:  balance,
	}, nil
}

func (s *Service) ListBalances(ctx context.Context) ([]ledgerdomain.UserBalance, error) {
	rows := []struct {
		TelegramID int64
		Charged    decimal.Decimal
		Paid       decimal.Decimal
	}{}
	err := s.db.WithContext(ctx).Raw(
		`SELECT u.telegram_id,
		        COALESCE((SELECT SUM(amount) FROM charges c WHERE c.user_id = u.id), 0) AS charged,
		        COALESCE((SELECT SUM(amount) FROM payments p WHERE p.user_id = u.id), 0) AS paid
		 FROM users u
		 ORDER BY u.created_at ASC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ledgerdomain.UserBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledgerdomain.UserBalance{
			TelegramID: row.TelegramID,
			Net:        row.Paid.Sub(row.Charged),
		})
	}
	return out, nil
}

func (s *Service) sum(ctx context.Context, query string, userID snowflake.ID) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.db.WithContext(ctx).Raw(query, userID).Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
