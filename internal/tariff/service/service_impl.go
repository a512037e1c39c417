package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/utilibot/utilibot/internal/clock"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) tariffdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tariff.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Set(ctx context.Context, utilityID snowflake.ID, rate decimal.Decimal, effectiveFrom time.Time) (*tariffdomain.Tariff, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, tariffdomain.ErrInvalidRate
	}
	if effectiveFrom.IsZero() {
		effectiveFrom = s.clock.Now()
	}

	record := &tariffdomain.Tariff{
		ID:            s.genID.Generate(),
		UtilityID:     utilityID,
		Rate:          rate,
		EffectiveFrom: effectiveFrom.UTC(),
		CreatedAt:     s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	s.log.Info("tariff set",
		zap.String("utility_id", utilityID.String()),
		zap.String("rate", rate.String()),
		zap.Time("effective_from", record.EffectiveFrom),
	)
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*tariffdomain.Tariff, error) {
	var record tariffdomain.Tariff
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tariffdomain.ErrTariffNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) ResolveAt(ctx context.Context, utilityID snowflake.ID, at time.Time) (*tariffdomain.Tariff, error) {
	var record tariffdomain.Tariff
	err := s.db.WithContext(ctx).
		Where("utility_id = ? AND effective_from <= ?", utilityID, at.UTC()).
		Order("effective_from DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tariffdomain.ErrNoTariff
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) ListByUtility(ctx context.Context, utilityID snowflake.ID) ([]tariffdomain.Tariff, error) {
	var records []tariffdomain.Tariff
	err := s.db.WithContext(ctx).
		Where("utility_id = ?", utilityID).
		Order("effective_from DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) Latest(ctx context.Context, utilityID snowflake.ID) (*tariffdomain.Tariff, error) {
	var record tariffdomain.Tariff
	err := s.db.WithContext(ctx).
		Where("utility_id = ?", utilityID).
		Order("effective_from DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) (bool, error) {
	var lastRemaining bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record tariffdomain.Tariff
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tariffdomain.ErrTariffNotFound
			}
			return err
		}

		var remaining int64
		if err := tx.Model(&tariffdomain.Tariff{}).
			Where("utility_id = ?", record.UtilityID).
			Count(&remaining).Error; err != nil {
			return err
		}
		lastRemaining = remaining == 1

		if err := tx.Delete(&record).Error; err != nil {
			return err
		}

		s.log.Info("tariff deleted",
			zap.String("utility_id", record.UtilityID.String()),
			zap.String("rate", record.Rate.String()),
			zap.Bool("last_remaining", lastRemaining),
		)
		return nil
	})
	if err != nil {
		return false, err
	}
	return lastRemaining, nil
}

func (s *Service) UtilityIDsWithTariffs(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&tariffdomain.Tariff{}).
		Distinct("utility_id").
		Pluck("utility_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
