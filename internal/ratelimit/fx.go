package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("ratelimit",
	fx.Provide(newRedisClient),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewOrderCreateLimiter),
)

// newRedisClient returns nil when no redis address is configured;
// everything downstream treats a nil client as limiting disabled.
func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
