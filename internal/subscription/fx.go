package subscription

import (
	"github.com/KeyT9999/keyt-shop-backend/internal/subscription/repository"
	"github.com/KeyT9999/keyt-shop-backend/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
