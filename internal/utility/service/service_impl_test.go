package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	billingdomain "github.com/utilibot/utilibot/internal/billing/domain"
	"github.com/utilibot/utilibot/internal/clock"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (utilitydomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&utilitydomain.Utility{},
		&tariffdomain.Tariff{},
		&billingdomain.MeterReading{},
		&billingdomain.Charge{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node, Clock: fc})
	return svc, db, node
}

func TestCreateNormalizesAndDefaults(t *testing.T) {
	svc, _, _ := setup(t)

	created, err := svc.Create(context.Background(), "  Electricity  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Electricity", created.Name)
	assert.Equal(t, utilitydomain.DefaultUnit, created.Unit)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Create(context.Background(), "   ", "kWh")
	assert.ErrorIs(t, err, utilitydomain.ErrInvalidName)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Water", "m3")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "Water", "m3")
	assert.ErrorIs(t, err, utilitydomain.ErrDuplicateName)
}

func TestDeleteRemovesUtilityAndTariffs(t *testing.T) {
	svc, db, node := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Gas", "m3")
	require.NoError(t, err)
	require.NoError(t, db.Create(&tariffdomain.Tariff{
		ID:            node.Generate(),
		UtilityID:     created.ID,
		Rate:          decimal.RequireFromString("3.20"),
		EffectiveFrom: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}).Error)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, utilitydomain.ErrUtilityNotFound)

	var tariffCount int64
	require.NoError(t, db.Model(&tariffdomain.Tariff{}).Where("utility_id = ?", created.ID).Count(&tariffCount).Error)
	assert.EqualValues(t, 0, tariffCount)
}

func TestDeleteRefusedWhileReferenced(t *testing.T) {
	svc, db, node := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Electricity", "kWh")
	require.NoError(t, err)
	require.NoError(t, db.Create(&billingdomain.MeterReading{
		ID:        node.Generate(),
		UserID:    node.Generate(),
		UtilityID: created.ID,
		Value:     decimal.RequireFromString("100"),
		Timestamp: time.Now().UTC(),
		Confirmed: true,
		CreatedAt: time.Now().UTC(),
	}).Error)

	err = svc.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, utilitydomain.ErrUtilityInUse)

	// Still there, untouched.
	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Electricity", got.Name)
}

func TestDeleteMissing(t *testing.T) {
	svc, _, node := setup(t)

	err := svc.Delete(context.Background(), node.Generate())
	assert.ErrorIs(t, err, utilitydomain.ErrUtilityNotFound)
}
