package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	catalogrepository "github.com/KeyT9999/keyt-shop-backend/internal/catalog/repository"
	catalogservice "github.com/KeyT9999/keyt-shop-backend/internal/catalog/service"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"github.com/KeyT9999/keyt-shop-backend/internal/notify"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	orderrepository "github.com/KeyT9999/keyt-shop-backend/internal/order/repository"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	subscriptionrepository "github.com/KeyT9999/keyt-shop-backend/internal/subscription/repository"
	subscriptionservice "github.com/KeyT9999/keyt-shop-backend/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type captureProvider struct {
	mu       sync.Mutex
	subjects []string
}

func (p *captureProvider) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *captureProvider) countContaining(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, subject := range p.subjects {
		if strings.Contains(subject, substr) {
			n++
		}
	}
	return n
}

func (p *captureProvider) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

type schedulerTestEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	orders  orderdomain.Repository
	catalog catalogdomain.Service
	subs    subscriptiondomain.Service
	mailer  *notify.Mailer
	mails   *captureProvider
	sched   *Scheduler
}

func setupSchedulerTest(t *testing.T, cfg Config) *schedulerTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Product{},
		&catalogdomain.PreloadedAccount{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&subscriptiondomain.Subscription{},
		&JobState{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	mails := &captureProvider{}
	mailer := notify.NewMailer(mails, log, "ops@example.com", "http://localhost:3000")

	catalogSvc := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: catalogrepository.Provide(),
	})
	subsSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: subscriptionrepository.Provide(),
	})

	sched, err := New(Params{
		DB:              db,
		Log:             log,
		Clock:           fake,
		Orders:          orderrepository.Provide(),
		Catalog:         catalogSvc,
		SubscriptionSvc: subsSvc,
		Mailer:          mailer,
		Config:          cfg,
	})
	require.NoError(t, err)

	return &schedulerTestEnv{
		db:      db,
		node:    node,
		clock:   fake,
		orders:  sched.orders,
		catalog: catalogSvc,
		subs:    subsSvc,
		mailer:  mailer,
		mails:   mails,
		sched:   sched,
	}
}

// insertPendingOrder creates an unpaid pending order aged back to
// createdAt, with a single plain-stock item.
func (e *schedulerTestEnv) insertPendingOrder(t *testing.T, code int, createdAt time.Time, productID snowflake.ID) *orderdomain.Order {
	t.Helper()
	order := &orderdomain.Order{
		ID:            e.node.Generate(),
		Code:          code,
		CustomerName:  "Trần Thị B",
		CustomerEmail: "b@example.com",
		OrderStatus:   orderdomain.OrderStatusPending,
		PaymentStatus: orderdomain.PaymentStatusPending,
		TotalAmount:   150000,
		Currency:      "VND",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Items: []orderdomain.OrderItem{
			{
				ID:          e.node.Generate(),
				ProductID:   productID,
				ProductName: "Steam Key",
				Quantity:    1,
				UnitPrice:   150000,
				CreatedAt:   createdAt,
			},
		},
	}
	order.Items[0].OrderID = order.ID
	require.NoError(t, e.orders.Insert(context.Background(), e.db, order))
	return order
}

func (e *schedulerTestEnv) plainProduct(t *testing.T, stock int) *catalogdomain.Product {
	t.Helper()
	product, err := e.catalog.CreateProduct(context.Background(), catalogdomain.CreateProductRequest{
		Name: "Steam Key", Price: 150000, Stock: stock,
	})
	require.NoError(t, err)
	return product
}

func TestPaymentReminderJobSendsThenMarks(t *testing.T) {
	env := setupSchedulerTest(t, Config{})
	ctx := context.Background()
	product := env.plainProduct(t, 5)

	stale := env.insertPendingOrder(t, 100001, env.clock.Now().Add(-3*time.Hour), product.ID)
	env.insertPendingOrder(t, 100002, env.clock.Now().Add(-30*time.Minute), product.ID)

	require.NoError(t, env.sched.PaymentReminderJob(ctx))
	assert.Equal(t, 1, env.mails.countContaining("Nhắc thanh toán"))

	reloaded, err := env.orders.FindByID(ctx, env.db, stale.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.PaymentReminderSentAt)

	// The sent flag keeps the next run quiet.
	require.NoError(t, env.sched.PaymentReminderJob(ctx))
	assert.Equal(t, 1, env.mails.countContaining("Nhắc thanh toán"))
}

func TestAutoCancelJobSkipsPaidAndReleasesStock(t *testing.T) {
	env := setupSchedulerTest(t, Config{})
	ctx := context.Background()
	product := env.plainProduct(t, 5)

	old := env.clock.Now().Add(-7 * time.Hour)
	unpaid := env.insertPendingOrder(t, 200001, old, product.ID)
	paid := env.insertPendingOrder(t, 200002, old, product.ID)

	require.NoError(t, env.catalog.CheckAvailability(ctx, product.ID, 1))
	moved, err := env.orders.UpdatePaymentStatus(ctx, env.db, paid.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusPaid, env.clock.Now())
	require.NoError(t, err)
	require.True(t, moved)

	require.NoError(t, env.sched.AutoCancelJob(ctx))

	cancelled, err := env.orders.FindByID(ctx, env.db, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusCancelled, cancelled.OrderStatus)
	assert.NotNil(t, cancelled.CancelledAt)

	survived, err := env.orders.FindByID(ctx, env.db, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPending, survived.OrderStatus)

	var reloadedProduct catalogdomain.Product
	require.NoError(t, env.db.First(&reloadedProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 0, reloadedProduct.Reserved)

	assert.Equal(t, 1, env.mails.countContaining("đã bị hủy"))

	// Second run finds nothing left to cancel.
	require.NoError(t, env.sched.AutoCancelJob(ctx))
	assert.Equal(t, 1, env.mails.countContaining("đã bị hủy"))
}

func TestSubscriptionExpiryJobNotifiesOnce(t *testing.T) {
	env := setupSchedulerTest(t, Config{})
	ctx := context.Background()

	tomorrow := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	sub, err := env.subs.Create(ctx, subscriptiondomain.CreateRequest{
		OrderID:       env.node.Generate(),
		OrderItemID:   env.node.Generate(),
		ProductID:     env.node.Generate(),
		CustomerName:  "Trần Thị B",
		CustomerEmail: "b@example.com",
		ServiceName:   "Canva Pro 1 Năm",
		StartAt:       env.clock.Now().AddDate(-1, 0, 1),
		EndAt:         tomorrow,
	})
	require.NoError(t, err)

	require.NoError(t, env.sched.SubscriptionExpiryJob(ctx))
	assert.Equal(t, 1, env.mails.countContaining("sắp hết hạn"))
	assert.Equal(t, 1, env.mails.countContaining("Dịch vụ hết hạn ngày mai"))

	var reloaded subscriptiondomain.Subscription
	require.NoError(t, env.db.First(&reloaded, "id = ?", sub.ID).Error)
	assert.True(t, reloaded.PreExpiryNotified)

	// Already-notified rows are excluded from the next run.
	require.NoError(t, env.sched.SubscriptionExpiryJob(ctx))
	assert.Equal(t, 1, env.mails.countContaining("sắp hết hạn"))
	assert.Equal(t, 1, env.mails.countContaining("Dịch vụ hết hạn ngày mai"))
}

func TestExpireSubscriptionsJobFlipsOverdue(t *testing.T) {
	env := setupSchedulerTest(t, Config{})
	ctx := context.Background()

	overdue, err := env.subs.Create(ctx, subscriptiondomain.CreateRequest{
		OrderID:       env.node.Generate(),
		OrderItemID:   env.node.Generate(),
		ProductID:     env.node.Generate(),
		CustomerName:  "A",
		CustomerEmail: "a@example.com",
		ServiceName:   "Netflix Premium",
		StartAt:       env.clock.Now().AddDate(0, -1, 0),
		EndAt:         env.clock.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	active, err := env.subs.Create(ctx, subscriptiondomain.CreateRequest{
		OrderID:       env.node.Generate(),
		OrderItemID:   env.node.Generate(),
		ProductID:     env.node.Generate(),
		CustomerName:  "A",
		CustomerEmail: "a@example.com",
		ServiceName:   "Canva Pro",
		StartAt:       env.clock.Now(),
		EndAt:         env.clock.Now().AddDate(0, 6, 0),
	})
	require.NoError(t, err)

	require.NoError(t, env.sched.ExpireSubscriptionsJob(ctx))

	var reloaded subscriptiondomain.Subscription
	require.NoError(t, env.db.First(&reloaded, "id = ?", overdue.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, reloaded.Status)

	reloaded = subscriptiondomain.Subscription{}
	require.NoError(t, env.db.First(&reloaded, "id = ?", active.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, reloaded.Status)
}

func TestRunOnceGatesDailyJobsPerDay(t *testing.T) {
	env := setupSchedulerTest(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, 1, env.mails.countContaining("Báo cáo đơn hàng"))

	// Same day, next tick: the digest must not repeat.
	env.clock.Advance(time.Minute)
	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, 1, env.mails.countContaining("Báo cáo đơn hàng"))

	env.clock.Advance(24 * time.Hour)
	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, 2, env.mails.countContaining("Báo cáo đơn hàng"))
}

func TestRunOnceDailyGateSurvivesRestart(t *testing.T) {
	env := setupSchedulerTest(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, 1, env.mails.countContaining("Báo cáo đơn hàng"))

	// A process restarted on the same day inherits the persisted gate.
	restarted, err := New(Params{
		DB:              env.db,
		Log:             zaptest.NewLogger(t),
		Clock:           env.clock,
		Orders:          env.orders,
		Catalog:         env.catalog,
		SubscriptionSvc: env.subs,
		Mailer:          env.mailer,
	})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	require.NoError(t, restarted.RunOnce(ctx))
	assert.Equal(t, 1, env.mails.countContaining("Báo cáo đơn hàng"))

	env.clock.Advance(24 * time.Hour)
	require.NoError(t, restarted.RunOnce(ctx))
	assert.Equal(t, 2, env.mails.countContaining("Báo cáo đơn hàng"))
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	env := setupSchedulerTest(t, Config{EnabledJobs: []string{"auto_cancel"}})
	ctx := context.Background()
	product := env.plainProduct(t, 5)

	// Old enough to qualify for both the reminder and the cancel.
	env.insertPendingOrder(t, 300001, env.clock.Now().Add(-7*time.Hour), product.ID)

	require.NoError(t, env.sched.RunOnce(ctx))

	assert.Equal(t, 1, env.mails.countContaining("đã bị hủy"))
	assert.Equal(t, 0, env.mails.countContaining("Nhắc thanh toán"))
	assert.Equal(t, 0, env.mails.countContaining("Báo cáo đơn hàng"))
	assert.Equal(t, 1, env.mails.total())
}
