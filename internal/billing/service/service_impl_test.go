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
	"github.com/utilibot/utilibot/internal/config"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	tariffservice "github.com/utilibot/utilibot/internal/tariff/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	tariffs tariffdomain.Service
	billing billingdomain.Service
}

func setup(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tariffdomain.Tariff{},
		&billingdomain.MeterReading{},
		&billingdomain.Charge{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	tariffs := tariffservice.NewService(tariffservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fc,
	})
	billing := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Cfg:       cfg,
		Clock:     fc,
		TariffSvc: tariffs,
	})

	return &fixture{db: db, node: node, clock: fc, tariffs: tariffs, billing: billing}
}

func (f *fixture) record(t *testing.T, userID, utilityID snowflake.ID, value string) (billingdomain.Outcome, error) {
	t.Helper()
	return f.billing.RecordReading(context.Background(), billingdomain.RecordReadingRequest{
		UserID:    userID,
		UtilityID: utilityID,
		Value:     decimal.RequireFromString(value),
		Timestamp: f.clock.Now(),
	})
}

func (f *fixture) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestRecordReadingBaseline(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	outcome, err := f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	assert.Equal(t, billingdomain.OutcomeBaseline, outcome.Kind)
	require.NotNil(t, outcome.Reading)
	assert.True(t, outcome.Reading.Confirmed)
	assert.Nil(t, outcome.Charge)
	assert.EqualValues(t, 1, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 0, f.countRows(t, &billingdomain.Charge{}))
}

func TestRecordReadingChargesConsumption(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("6.50"), f.clock.Now())
	require.NoError(t, err)

	_, err = f.record(t, userID, utilityID, "100")
	require.NoError(t, err)
	baselineAt := f.clock.Now()

	f.clock.Advance(5 * 24 * time.Hour)
	outcome, err := f.record(t, userID, utilityID, "130")
	require.NoError(t, err)

	assert.Equal(t, billingdomain.OutcomeCharged, outcome.Kind)
	require.NotNil(t, outcome.Charge)
	assert.True(t, outcome.Charge.Consumption.Equal(decimal.RequireFromString("30")),
		"consumption = %s", outcome.Charge.Consumption)
	assert.True(t, outcome.Charge.Amount.Equal(decimal.RequireFromString("195.00")),
		"amount = %s", outcome.Charge.Amount)
	assert.True(t, outcome.Charge.PeriodStart.Equal(baselineAt))
	assert.True(t, outcome.Charge.PeriodEnd.Equal(f.clock.Now()))
	assert.EqualValues(t, 2, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 1, f.countRows(t, &billingdomain.Charge{}))
}

func TestRecordReadingRoundsHalfUp(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("2.345"), f.clock.Now())
	require.NoError(t, err)

	_, err = f.record(t, userID, utilityID, "10")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	outcome, err := f.record(t, userID, utilityID, "11")
	require.NoError(t, err)

	require.NotNil(t, outcome.Charge)
	assert.True(t, outcome.Charge.Amount.Equal(decimal.RequireFromString("2.35")),
		"amount = %s", outcome.Charge.Amount)
}

func TestRecordReadingDecreasedRejected(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("1"), f.clock.Now())
	require.NoError(t, err)
	_, err = f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.record(t, userID, utilityID, "90")
	assert.ErrorIs(t, err, billingdomain.ErrMeterDecreased)

	assert.EqualValues(t, 1, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 0, f.countRows(t, &billingdomain.Charge{}))

	// The meter can still move forward after a rejected value.
	outcome, err := f.record(t, userID, utilityID, "110")
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeCharged, outcome.Kind)
}

func TestRecordReadingNegativeRejected(t *testing.T) {
	f := setup(t, config.Config{})

	_, err := f.record(t, f.node.Generate(), f.node.Generate(), "-1")
	assert.ErrorIs(t, err, billingdomain.ErrInvalidValue)
	assert.EqualValues(t, 0, f.countRows(t, &billingdomain.MeterReading{}))
}

func TestRecordReadingNoTariff(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.record(t, userID, utilityID, "130")
	assert.ErrorIs(t, err, billingdomain.ErrNoTariff)

	// The failed attempt must leave no trace: the reading rolls back with
	// the missing charge.
	assert.EqualValues(t, 1, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 0, f.countRows(t, &billingdomain.Charge{}))
}

func TestRecordReadingDuplicateTimestamp(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("1"), f.clock.Now())
	require.NoError(t, err)
	_, err = f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.record(t, userID, utilityID, "130")
	require.NoError(t, err)

	// A different value at the exact same instant collides with the
	// stored reading and must not produce a second charge.
	_, err = f.record(t, userID, utilityID, "140")
	assert.ErrorIs(t, err, billingdomain.ErrDuplicateReading)
	assert.EqualValues(t, 2, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 1, f.countRows(t, &billingdomain.Charge{}))
}

func TestRecordReadingRedeliveredValueIsNoChange(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("1"), f.clock.Now())
	require.NoError(t, err)
	_, err = f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	outcome, err := f.record(t, userID, utilityID, "100")
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeNoChange, outcome.Kind)
	assert.EqualValues(t, 1, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 0, f.countRows(t, &billingdomain.Charge{}))
}

func TestRecordReadingZeroConsumptionPersisted(t *testing.T) {
	f := setup(t, config.Config{PersistZeroReading: true})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	outcome, err := f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	assert.Equal(t, billingdomain.OutcomeNoChange, outcome.Kind)
	require.NotNil(t, outcome.Reading)
	assert.EqualValues(t, 2, f.countRows(t, &billingdomain.MeterReading{}))
	assert.EqualValues(t, 0, f.countRows(t, &billingdomain.Charge{}))
}

func TestRecordReadingUsesTariffVersionAtTimestamp(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	_, err := f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("5.00"), f.clock.Now())
	require.NoError(t, err)

	_, err = f.record(t, userID, utilityID, "0")
	require.NoError(t, err)

	f.clock.Advance(3 * 24 * time.Hour)
	_, err = f.tariffs.Set(context.Background(), utilityID, decimal.RequireFromString("7.00"), f.clock.Now())
	require.NoError(t, err)

	f.clock.Advance(2 * 24 * time.Hour)
	outcome, err := f.record(t, userID, utilityID, "10")
	require.NoError(t, err)

	// The newer version is effective at the reading's timestamp, even
	// though most of the period ran under the old rate.
	require.NotNil(t, outcome.Charge)
	assert.True(t, outcome.Charge.Amount.Equal(decimal.RequireFromString("70.00")),
		"amount = %s", outcome.Charge.Amount)
}

func TestLastConfirmed(t *testing.T) {
	f := setup(t, config.Config{})
	userID, utilityID := f.node.Generate(), f.node.Generate()

	last, err := f.billing.LastConfirmed(context.Background(), userID, utilityID)
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = f.record(t, userID, utilityID, "100")
	require.NoError(t, err)

	last, err = f.billing.LastConfirmed(context.Background(), userID, utilityID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Value.Equal(decimal.RequireFromString("100")))
}
