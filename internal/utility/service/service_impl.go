package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/utilibot/utilibot/internal/clock"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
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
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) utilitydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("utility.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, name, unit string) (*utilitydomain.Utility, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utilitydomain.ErrInvalidName
	}
	if unit = strings.TrimSpace(unit); unit == "" {
		unit = utilitydomain.DefaultUnit
	}

	record := &utilitydomain.Utility{
		ID:        s.genID.Generate(),
		Name:      name,
		Unit:      unit,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, utilitydomain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("utility created", zap.String("name", name), zap.String("unit", unit))
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*utilitydomain.Utility, error) {
	var record utilitydomain.Utility
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utilitydomain.ErrUtilityNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) List(ctx context.Context) ([]utilitydomain.Utility, error) {
	var records []utilitydomain.Utility
	err := s.db.WithContext(ctx).Order("name ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record utilitydomain.Utility
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utilitydomain.ErrUtilityNotFound
			}
			return err
		}

		// Referential integrity is enforced here, not left to the
		// storage engine: a utility with recorded history must stay.
		var referenced bool
		err := tx.Raw(
			`SELECT EXISTS(SELECT 1 FROM meter_readings WHERE utility_id = ?)
			 OR EXISTS(SELECT 1 FROM charges WHERE utility_id = ?)`,
			id, id,
		).Scan(&referenced).Error
		if err != nil {
			return err
		}
		if referenced {
			return utilitydomain.ErrUtilityInUse
		}

		if err := tx.Exec(`DELETE FROM tariffs WHERE utility_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&record).Error; err != nil {
			return err
		}

		s.log.Info("utility deleted", zap.String("name", record.Name))
		return nil
	})
}
