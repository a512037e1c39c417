package service

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
	"github.com/utilibot/utilibot/internal/config"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T, cfg config.Config) userdomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&userdomain.User{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	return NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node, Cfg: cfg, Clock: fc})
}

func TestGetOrCreateFirstContact(t *testing.T) {
	svc := setup(t, config.Config{AdminIDs: []int64{42}})
	ctx := context.Background()

	admin, err := svc.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	member, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.False(t, member.IsAdmin)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc := setup(t, config.Config{})
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAdminFlagFixedAtFirstContact(t *testing.T) {
	svc := setup(t, config.Config{})
	ctx := context.Background()

	before, err := svc.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	require.False(t, before.IsAdmin)

	// Joining the allow-list later does not retroactively promote a row
	// that was created without the flag.
	promoted := setupWithSameDB(t, svc, config.Config{AdminIDs: []int64{42}})
	after, err := promoted.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.False(t, after.IsAdmin)
}

// setupWithSameDB rebuilds the service with a different allow-list on top of
// the existing storage.
func setupWithSameDB(t *testing.T, svc userdomain.Service, cfg config.Config) userdomain.Service {
	t.Helper()
	impl, ok := svc.(*Service)
	require.True(t, ok)
	return NewService(ServiceParam{DB: impl.db, Log: impl.log, GenID: impl.genID, Cfg: cfg, Clock: impl.clock})
}

func TestGetByTelegramIDMissing(t *testing.T) {
	svc := setup(t, config.Config{})

	_, err := svc.GetByTelegramID(context.Background(), 999)
	assert.ErrorIs(t, err, userdomain.ErrUserNotFound)
}

func TestListOthersExcludesSelf(t *testing.T) {
	svc := setup(t, config.Config{})
	ctx := context.Background()

	admin, err := svc.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	_, err = svc.GetOrCreate(ctx, 2)
	require.NoError(t, err)
	_, err = svc.GetOrCreate(ctx, 3)
	require.NoError(t, err)

	others, err := svc.ListOthers(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, others, 2)
	for _, u := range others {
		assert.NotEqual(t, admin.ID, u.ID)
	}
}
