package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/utilibot/utilibot/internal/clock"
	paymentdomain "github.com/utilibot/utilibot/internal/payment/domain"
	"github.com/utilibot/utilibot/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *telemetry.Metrics
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, userID snowflake.ID, amount decimal.Decimal, timestamp time.Time, note string) (*paymentdomain.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, paymentdomain.ErrInvalidAmount
	}
	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}

	record := &paymentdomain.Payment{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Amount:    amount.Round(2),
		Timestamp: timestamp.UTC(),
		Note:      note,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncPayment()
	}
	s.log.Info("payment recorded",
		zap.String("user_id", userID.String()),
		zap.String("amount", record.Amount.String()),
	)
	return record, nil
}

func (s *Service) ListRecent(ctx context.Context, userID snowflake.ID, limit int) ([]paymentdomain.Payment, error) {
	if limit <= 0 {
		limit = 5
	}
	var records []paymentdomain.Payment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
