package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/utilibot/utilibot/internal/billing"
	"github.com/utilibot/utilibot/internal/bot"
	"github.com/utilibot/utilibot/internal/clock"
	"github.com/utilibot/utilibot/internal/config"
	"github.com/utilibot/utilibot/internal/dialog"
	"github.com/utilibot/utilibot/internal/dispatcher"
	"github.com/utilibot/utilibot/internal/ledger"
	"github.com/utilibot/utilibot/internal/logger"
	"github.com/utilibot/utilibot/internal/migration"
	"github.com/utilibot/utilibot/internal/payment"
	"github.com/utilibot/utilibot/internal/server"
	"github.com/utilibot/utilibot/internal/tariff"
	"github.com/utilibot/utilibot/internal/user"
	"github.com/utilibot/utilibot/internal/utility"
	"github.com/utilibot/utilibot/pkg/db"
	"github.com/utilibot/utilibot/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		telemetry.Module,
		migration.Module,

		// Functional domains
		user.Module,
		utility.Module,
		tariff.Module,
		billing.Module,
		payment.Module,
		ledger.Module,
		dialog.Module,
		dispatcher.Module,

		// Transports
		bot.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
