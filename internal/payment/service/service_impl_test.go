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
	"github.com/utilibot/utilibot/internal/clock"
	paymentdomain "github.com/utilibot/utilibot/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (paymentdomain.Service, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&paymentdomain.Payment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node, Clock: fc})
	return svc, node, fc
}

func TestRecordRoundsToMoneyPrecision(t *testing.T) {
	svc, node, fc := setup(t)

	payment, err := svc.Record(context.Background(), node.Generate(), decimal.RequireFromString("100.005"), fc.Now(), "")
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("100.01")),
		"amount = %s", payment.Amount)
}

func TestRecordRejectsNonPositiveAmount(t *testing.T) {
	svc, node, fc := setup(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, node.Generate(), decimal.Zero, fc.Now(), "")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.Record(ctx, node.Generate(), decimal.RequireFromString("-5"), fc.Now(), "")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestListRecentNewestFirst(t *testing.T) {
	svc, node, fc := setup(t)
	ctx := context.Background()
	userID := node.Generate()

	for i := 1; i <= 7; i++ {
		_, err := svc.Record(ctx, userID, decimal.NewFromInt(int64(i)), fc.Now(), "")
		require.NoError(t, err)
		fc.Advance(time.Hour)
	}

	recent, err := svc.ListRecent(ctx, userID, 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.True(t, recent[0].Amount.Equal(decimal.NewFromInt(7)))
	assert.True(t, recent[4].Amount.Equal(decimal.NewFromInt(3)))
}
