package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/KeyT9999/keyt-shop-backend/internal/catalog"
	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"github.com/KeyT9999/keyt-shop-backend/internal/fulfillment"
	"github.com/KeyT9999/keyt-shop-backend/internal/notify"
	"github.com/KeyT9999/keyt-shop-backend/internal/order"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/payos"
	"github.com/KeyT9999/keyt-shop-backend/internal/ratelimit"
	"github.com/KeyT9999/keyt-shop-backend/internal/reconcile"
	"github.com/KeyT9999/keyt-shop-backend/internal/server"
	"github.com/KeyT9999/keyt-shop-backend/internal/subscription"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"github.com/KeyT9999/keyt-shop-backend/pkg/db"
	"github.com/KeyT9999/keyt-shop-backend/pkg/log"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		catalog.Module,
		order.Module,
		subscription.Module,
		notify.Module,
		payos.Module,
		fulfillment.Module,
		reconcile.Module,
		ratelimit.Module,

		fx.Invoke(AutoMigrate),
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

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&catalogdomain.Product{},
		&catalogdomain.PreloadedAccount{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&subscriptiondomain.Subscription{},
	)
}
