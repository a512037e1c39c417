package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/utilibot/utilibot/internal/billing/domain"
	"github.com/utilibot/utilibot/internal/clock"
	"github.com/utilibot/utilibot/internal/config"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	"github.com/utilibot/utilibot/pkg/db"
	"github.com/utilibot/utilibot/pkg/keyedmutex"
	"github.com/utilibot/utilibot/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Clock     clock.Clock
	TariffSvc tariffdomain.Service
	Metrics   *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	cfg       config.Config
	clock     clock.Clock
	tariffsvc tariffdomain.Service
	metrics   *telemetry.Metrics

	// meterLocks serializes RecordReading per (user, utility) so two
	// concurrent readings cannot both observe the same last reading and
	// bill overlapping consumption. The unique indexes are the backstop.
	meterLocks *keyedmutex.KeyedMutex
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		clock:      p.Clock,
		tariffsvc:  p.TariffSvc,
		metrics:    p.Metrics,
		meterLocks: keyedmutex.New(),
	}
}

func (s *Service) RecordReading(ctx context.Context, req billingdomain.RecordReadingRequest) (billingdomain.Outcome, error) {
	if req.Value.IsNegative() {
		return billingdomain.Outcome{}, billingdomain.ErrInvalidValue
	}
	timestamp := req.Timestamp.UTC()
	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}

	lockKey := fmt.Sprintf("%d/%d", req.UserID, req.UtilityID)
	s.meterLocks.Lock(lockKey)
	defer s.meterLocks.Unlock(lockKey)

	var outcome billingdomain.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := lastConfirmed(tx, req.UserID, req.UtilityID)
		if err != nil {
			return err
		}

		if last == nil {
			// First reading for this meter: establish the baseline,
			// bill nothing.
			reading, err := s.insertReading(tx, req, timestamp)
			if err != nil {
				return err
			}
			outcome = billingdomain.Outcome{Kind: billingdomain.OutcomeBaseline, Reading: reading}
			return nil
		}

		if req.Value.LessThan(last.Value) {
			return billingdomain.ErrMeterDecreased
		}

		consumption := req.Value.Sub(last.Value)
		if consumption.IsZero() {
			outcome = billingdomain.Outcome{Kind: billingdomain.OutcomeNoChange}
			if !s.cfg.PersistZeroReading {
				return nil
			}
			reading, err := s.insertReading(tx, req, timestamp)
			if err != nil {
				return err
			}
			outcome.Reading = reading
			return nil
		}

		tariff, err := s.tariffsvc.ResolveAt(ctx, req.UtilityID, timestamp)
		if err != nil {
			if errors.Is(err, tariffdomain.ErrNoTariff) {
				return billingdomain.ErrNoTariff
			}
			return err
		}

		amount := consumption.Mul(tariff.Rate).Round(billingdomain.MoneyPrecision)

		reading, err := s.insertReading(tx, req, timestamp)
		if err != nil {
			return err
		}

		charge := &billingdomain.Charge{
			ID:          s.genID.Generate(),
			UserID:      req.UserID,
			UtilityID:   req.UtilityID,
			PeriodStart: last.Timestamp,
			PeriodEnd:   timestamp,
			Consumption: consumption,
			Amount:      amount,
			CreatedAt:   s.clock.Now(),
		}
		if err := tx.Create(charge).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return billingdomain.ErrDuplicateReading
			}
			return err
		}

		outcome = billingdomain.Outcome{
			Kind:    billingdomain.OutcomeCharged,
			Reading: reading,
			Charge:  charge,
		}
		return nil
	})
	if err != nil {
		return billingdomain.Outcome{}, err
	}

	s.recordMetrics(outcome)
	s.log.Info("reading recorded",
		zap.String("user_id", req.UserID.String()),
		zap.String("utility_id", req.UtilityID.String()),
		zap.String("value", req.Value.String()),
		zap.String("outcome", string(outcome.Kind)),
	)
	return outcome, nil
}

func (s *Service) LastConfirmed(ctx context.Context, userID, utilityID snowflake.ID) (*billingdomain.MeterReading, error) {
	return lastConfirmed(s.db.WithContext(ctx), userID, utilityID)
}

func (s *Service) insertReading(tx *gorm.DB, req billingdomain.RecordReadingRequest, timestamp time.Time) (*billingdomain.MeterReading, error) {
	record := &billingdomain.MeterReading{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		UtilityID: req.UtilityID,
		Value:     req.Value,
		Timestamp: timestamp,
		Confirmed: true,
		CreatedAt: s.clock.Now(),
	}
	if err := tx.Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, billingdomain.ErrDuplicateReading
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) recordMetrics(outcome billingdomain.Outcome) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncReading(string(outcome.Kind))
	if outcome.Kind == billingdomain.OutcomeCharged {
		s.metrics.IncCharge()
	}
}

func lastConfirmed(tx *gorm.DB, userID, utilityID snowflake.ID) (*billingdomain.MeterReading, error) {
	var record billingdomain.MeterReading
	err := tx.
		Where("user_id = ? AND utility_id = ? AND confirmed = ?", userID, utilityID, true).
		Order("timestamp DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
