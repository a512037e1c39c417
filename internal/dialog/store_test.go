package dialog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utilibot/utilibot/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*Store, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ConversationState{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	store := NewStore(StoreParam{DB: db, Log: zap.NewNop(), Clock: fc})
	return store, node
}

func TestGetIdleWhenAbsent(t *testing.T) {
	store, node := setup(t)

	state, err := store.Get(context.Background(), node.Generate())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSetGetRoundTrip(t *testing.T) {
	store, node := setup(t)
	ctx := context.Background()
	userID := node.Generate()
	utilityID := node.Generate()

	require.NoError(t, store.Set(ctx, userID, AwaitingReadingValue{UtilityID: utilityID}))

	state, err := store.Get(ctx, userID)
	require.NoError(t, err)
	got, ok := state.(AwaitingReadingValue)
	require.True(t, ok, "got %T", state)
	assert.Equal(t, utilityID, got.UtilityID)
}

func TestSetOverwritesPreviousState(t *testing.T) {
	store, node := setup(t)
	ctx := context.Background()
	userID := node.Generate()

	require.NoError(t, store.Set(ctx, userID, AwaitingUtilityChoice{}))
	require.NoError(t, store.Set(ctx, userID, AwaitingPaymentAmount{}))

	state, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.IsType(t, AwaitingPaymentAmount{}, state)

	// Exactly one record per user, replaced in place.
	var n int64
	require.NoError(t, store.db.Model(&ConversationState{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestClearIsIdempotent(t *testing.T) {
	store, node := setup(t)
	ctx := context.Background()
	userID := node.Generate()

	require.NoError(t, store.Set(ctx, userID, AwaitingUtilityChoice{}))
	require.NoError(t, store.Clear(ctx, userID))
	require.NoError(t, store.Clear(ctx, userID))

	state, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestGetUnknownStepTreatedAsIdle(t *testing.T) {
	store, node := setup(t)
	ctx := context.Background()
	userID := node.Generate()

	require.NoError(t, store.db.Create(&ConversationState{
		UserID:    userID,
		Step:      "step_from_a_future_release",
		UpdatedAt: time.Now().UTC(),
	}).Error)

	state, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestGetCorruptContextTreatedAsIdle(t *testing.T) {
	store, node := setup(t)
	ctx := context.Background()
	userID := node.Generate()

	require.NoError(t, store.Set(ctx, userID, AwaitingReadingValue{UtilityID: node.Generate()}))
	require.NoError(t, store.db.Model(&ConversationState{}).
		Where("user_id = ?", userID).
		Update("context", []byte("{not json")).Error)

	state, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestAllStepsRoundTrip(t *testing.T) {
	store, node := setup(t)
	ctx := context.Background()
	userID := node.Generate()

	variants := []State{
		AwaitingUtilityChoice{},
		AwaitingReadingValue{UtilityID: node.Generate()},
		AwaitingPaymentAmount{},
		AdminAddUtilityName{},
		AdminAwaitingTariffUtility{},
		AdminAwaitingTariffValue{UtilityID: node.Generate()},
		AdminChoosingUserForReading{},
		AdminAwaitingReadingValue{TargetUserID: node.Generate(), UtilityID: node.Generate()},
		AdminChoosingUserForPayment{},
		AdminAwaitingPaymentValue{TargetUserID: node.Generate()},
		AdminDeletingTariff{UtilityID: node.Generate()},
	}
	for _, want := range variants {
		require.NoError(t, store.Set(ctx, userID, want))
		got, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, want, got, "step %s", want.Step())
	}
}
