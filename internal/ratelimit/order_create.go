package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	orderCreateWindow = 15 * time.Minute
	orderCreateLimit  = 10
)

// OrderCreateLimiter throttles order creation per client IP. With no
// redis configured it allows everything, so a bare deployment still
// works.
type OrderCreateLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
}

func NewOrderCreateLimiter(bucket *TokenBucket, log *zap.Logger) *OrderCreateLimiter {
	return &OrderCreateLimiter{
		bucket: bucket,
		log:    log.Named("ratelimit.order_create"),
	}
}

// Allow reports whether the given client may create another order.
// Limiter errors fail open; losing redis must not take checkout down.
func (l *OrderCreateLimiter) Allow(ctx context.Context, clientIP string) bool {
	if l == nil || l.bucket == nil {
		return true
	}

	rate := float64(orderCreateLimit) / orderCreateWindow.Seconds()
	res, err := l.bucket.Allow(ctx, "ratelimit:order_create:"+clientIP, rate, orderCreateLimit)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err), zap.String("client_ip", clientIP))
		return true
	}
	return res.Allowed
}
