package order

import (
	"github.com/KeyT9999/keyt-shop-backend/internal/order/repository"
	"github.com/KeyT9999/keyt-shop-backend/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
