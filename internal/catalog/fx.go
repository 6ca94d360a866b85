package catalog

import (
	"github.com/KeyT9999/keyt-shop-backend/internal/catalog/repository"
	"github.com/KeyT9999/keyt-shop-backend/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
