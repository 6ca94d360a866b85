package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupSubscriptionTest(t *testing.T) (subscriptiondomain.Service, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, db, node, fake
}

func createSub(t *testing.T, svc subscriptiondomain.Service, node *snowflake.Node, email string, end time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := svc.Create(context.Background(), subscriptiondomain.CreateRequest{
		OrderID:       node.Generate(),
		OrderItemID:   node.Generate(),
		ProductID:     node.Generate(),
		CustomerName:  "Nguyễn Văn A",
		CustomerEmail: email,
		ServiceName:   "Canva Pro 1 Năm",
		StartAt:       end.AddDate(-1, 0, 0),
		EndAt:         end,
	})
	require.NoError(t, err)
	return sub
}

func TestCreateAbsorbsReplayForSameItem(t *testing.T) {
	svc, db, node, fake := setupSubscriptionTest(t)
	ctx := context.Background()

	req := subscriptiondomain.CreateRequest{
		OrderID:       node.Generate(),
		OrderItemID:   node.Generate(),
		ProductID:     node.Generate(),
		CustomerName:  "A",
		CustomerEmail: "A@Example.com",
		ServiceName:   "Netflix Premium",
		StartAt:       fake.Now(),
		EndAt:         fake.Now().AddDate(1, 0, 0),
	}

	first, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, first.Status)
	assert.Equal(t, "a@example.com", first.CustomerEmail)

	// A replayed fulfillment hits the unique order-item guard and gets
	// the existing row back.
	second, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&subscriptiondomain.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListByEmailNormalizes(t *testing.T) {
	svc, _, node, fake := setupSubscriptionTest(t)
	createSub(t, svc, node, "a@example.com", fake.Now().AddDate(1, 0, 0))

	subs, err := svc.ListByEmail(context.Background(), "  A@EXAMPLE.COM ")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestExpiringTomorrowSkipsNotified(t *testing.T) {
	svc, _, node, fake := setupSubscriptionTest(t)
	ctx := context.Background()

	tomorrow := time.Date(2026, 8, 2, 15, 0, 0, 0, time.UTC)
	due := createSub(t, svc, node, "a@example.com", tomorrow)
	createSub(t, svc, node, "b@example.com", tomorrow.AddDate(0, 0, 5))

	expiring, err := svc.ExpiringTomorrow(ctx, fake.Now())
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, due.ID, expiring[0].ID)

	marked, err := svc.MarkNotified(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = svc.MarkNotified(ctx, due.ID)
	require.NoError(t, err)
	assert.False(t, marked, "notified flag must flip once")

	expiring, err = svc.ExpiringTomorrow(ctx, fake.Now())
	require.NoError(t, err)
	assert.Empty(t, expiring)

	// The today view is a digest, it keeps notified rows.
	fake.Advance(24 * time.Hour)
	today, err := svc.ExpiringToday(ctx, fake.Now())
	require.NoError(t, err)
	assert.Len(t, today, 1)
}

func TestExpireOverdue(t *testing.T) {
	svc, db, node, fake := setupSubscriptionTest(t)
	ctx := context.Background()

	overdue := createSub(t, svc, node, "a@example.com", fake.Now().Add(-time.Hour))
	active := createSub(t, svc, node, "b@example.com", fake.Now().AddDate(0, 1, 0))

	expired, err := svc.ExpireOverdue(ctx, fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	var reloaded subscriptiondomain.Subscription
	require.NoError(t, db.First(&reloaded, "id = ?", overdue.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, reloaded.Status)

	reloaded = subscriptiondomain.Subscription{}
	require.NoError(t, db.First(&reloaded, "id = ?", active.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, reloaded.Status)

	// Nothing left to expire on the next pass.
	expired, err = svc.ExpireOverdue(ctx, fake.Now())
	require.NoError(t, err)
	assert.Zero(t, expired)
}
