package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupOrderRepoTest(t *testing.T) (orderdomain.Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}, &orderdomain.OrderItem{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return Provide(), db, node
}

func insertOrder(t *testing.T, repo orderdomain.Repository, db *gorm.DB, node *snowflake.Node, code int) *orderdomain.Order {
	t.Helper()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	order := &orderdomain.Order{
		ID:            node.Generate(),
		Code:          code,
		CustomerName:  "Nguyễn Văn A",
		CustomerEmail: "a@example.com",
		OrderStatus:   orderdomain.OrderStatusPending,
		PaymentStatus: orderdomain.PaymentStatusPending,
		TotalAmount:   99000,
		Currency:      "VND",
		CreatedAt:     now,
		UpdatedAt:     now,
		Items: []orderdomain.OrderItem{
			{
				ID:          node.Generate(),
				ProductID:   node.Generate(),
				ProductName: "Canva Pro 1 Năm",
				Quantity:    1,
				UnitPrice:   99000,
				CreatedAt:   now,
			},
		},
	}
	order.Items[0].OrderID = order.ID
	require.NoError(t, repo.Insert(context.Background(), db, order))
	return order
}

func TestInsertRejectsDuplicateCode(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)

	insertOrder(t, repo, db, node, 123456)

	dup := &orderdomain.Order{
		ID:            node.Generate(),
		Code:          123456,
		CustomerName:  "B",
		CustomerEmail: "b@example.com",
		OrderStatus:   orderdomain.OrderStatusPending,
		PaymentStatus: orderdomain.PaymentStatusPending,
	}
	err := repo.Insert(context.Background(), db, dup)
	require.Error(t, err)
}

func TestUpdateOrderStatusGuardsExpectedState(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 111111)
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	moved, err := repo.UpdateOrderStatus(ctx, db, order.ID,
		orderdomain.OrderStatusPending, orderdomain.OrderStatusConfirmed, at)
	require.NoError(t, err)
	assert.True(t, moved)

	// Replaying the same step finds the guard no longer matching.
	moved, err = repo.UpdateOrderStatus(ctx, db, order.ID,
		orderdomain.OrderStatusPending, orderdomain.OrderStatusConfirmed, at)
	require.NoError(t, err)
	assert.False(t, moved)

	reloaded, err := repo.FindByID(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusConfirmed, reloaded.OrderStatus)
	require.NotNil(t, reloaded.ConfirmedAt)
}

func TestUpdatePaymentStatusStampsPaidAtOnce(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 222222)
	at := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)

	paid, err := repo.UpdatePaymentStatus(ctx, db, order.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusPaid, at)
	require.NoError(t, err)
	assert.True(t, paid)

	paid, err = repo.UpdatePaymentStatus(ctx, db, order.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusPaid, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, paid)

	reloaded, err := repo.FindByID(ctx, db, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PaidAt)
	assert.WithinDuration(t, at, *reloaded.PaidAt, time.Second)
}

func TestCancelActiveUnpaidOnlySkipsPaidOrders(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 333333)
	at := time.Date(2026, 8, 1, 16, 0, 0, 0, time.UTC)

	_, err := repo.UpdatePaymentStatus(ctx, db, order.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusPaid, at)
	require.NoError(t, err)

	cancelled, err := repo.CancelActive(ctx, db, order.ID, at, true)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// Without the unpaid guard the operator can still cancel it.
	cancelled, err = repo.CancelActive(ctx, db, order.ID, at, false)
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = repo.CancelActive(ctx, db, order.ID, at, false)
	require.NoError(t, err)
	assert.False(t, cancelled, "cancel must not apply twice")
}

func TestSetGatewayLinkAttachesOnce(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 444444)

	set, err := repo.SetGatewayLink(ctx, db, order.ID, 987654321001, "link-1", "https://pay/1", "qr-1")
	require.NoError(t, err)
	assert.True(t, set)

	set, err = repo.SetGatewayLink(ctx, db, order.ID, 987654321002, "link-2", "https://pay/2", "qr-2")
	require.NoError(t, err)
	assert.False(t, set)

	reloaded, err := repo.FindByGatewayCode(ctx, db, 987654321001)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, "link-1", *reloaded.PaymentLinkID)

	missing, err := repo.FindByGatewayCode(ctx, db, 987654321002)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSetItemDeliveredAccountWritesOnce(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 555555)
	itemID := order.Items[0].ID

	delivered, err := repo.SetItemDeliveredAccount(ctx, db, itemID, "user1:pass1")
	require.NoError(t, err)
	assert.True(t, delivered)

	delivered, err = repo.SetItemDeliveredAccount(ctx, db, itemID, "user2:pass2")
	require.NoError(t, err)
	assert.False(t, delivered)

	reloaded, err := repo.FindByID(ctx, db, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Items[0].DeliveredAccount)
	assert.Equal(t, "user1:pass1", *reloaded.Items[0].DeliveredAccount)
}

func TestMarkReminderSentOnce(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 666666)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	marked, err := repo.MarkReminderSent(ctx, db, order.ID, at)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = repo.MarkReminderSent(ctx, db, order.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestListFilters(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	first := insertOrder(t, repo, db, node, 700001)
	insertOrder(t, repo, db, node, 700002)

	_, err := repo.UpdatePaymentStatus(ctx, db, first.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusPaid, time.Now().UTC())
	require.NoError(t, err)

	paid, err := repo.List(ctx, db, orderdomain.ListFilter{PaymentStatus: orderdomain.PaymentStatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, first.Code, paid[0].Code)

	all, err := repo.List(ctx, db, orderdomain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindByCode(t *testing.T) {
	repo, db, node := setupOrderRepoTest(t)
	ctx := context.Background()
	order := insertOrder(t, repo, db, node, 808080)

	found, err := repo.FindByCode(ctx, db, 808080)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)

	missing, err := repo.FindByCode(ctx, db, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
