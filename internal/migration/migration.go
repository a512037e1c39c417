// Package migration applies the schema on startup. The model set is small
// and append-mostly, so gorm's AutoMigrate is sufficient; destructive
// changes would need a manual migration anyway.
package migration

import (
	billingdomain "github.com/utilibot/utilibot/internal/billing/domain"
	"github.com/utilibot/utilibot/internal/dialog"
	paymentdomain "github.com/utilibot/utilibot/internal/payment/domain"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(
		&userdomain.User{},
		&utilitydomain.Utility{},
		&tariffdomain.Tariff{},
		&billingdomain.MeterReading{},
		&billingdomain.Charge{},
		&paymentdomain.Payment{},
		&dialog.ConversationState{},
	); err != nil {
		return err
	}
	log.Info("schema migrated")
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Migrate),
)
