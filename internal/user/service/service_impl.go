package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/utilibot/utilibot/internal/clock"
	"github.com/utilibot/utilibot/internal/config"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	"github.com/utilibot/utilibot/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	cfg   config.Config
	clock clock.Clock
}

func NewService(p ServiceParam) userdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		cfg:   p.Cfg,
		clock: p.Clock,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, telegramID int64) (*userdomain.User, error) {
	existing, err := s.findByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	record := &userdomain.User{
		ID:         s.genID.Generate(),
		TelegramID: telegramID,
		IsAdmin:    s.cfg.IsAdminID(telegramID),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		// Two first-contact events may race; the unique index on
		// telegram_id decides the winner and we return its row.
		if db.IsDuplicateKeyErr(err) {
			return s.GetByTelegramID(ctx, telegramID)
		}
		return nil, err
	}

	s.log.Info("user registered",
		zap.Int64("telegram_id", telegramID),
		zap.Bool("is_admin", record.IsAdmin),
	)
	return record, nil
}

func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*userdomain.User, error) {
	record, err := s.findByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, userdomain.ErrUserNotFound
	}
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	var record userdomain.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userdomain.ErrUserNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) ListOthers(ctx context.Context, excludeID snowflake.ID) ([]userdomain.User, error) {
	var records []userdomain.User
	err := s.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) findByTelegramID(ctx context.Context, telegramID int64) (*userdomain.User, error) {
	var record userdomain.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
