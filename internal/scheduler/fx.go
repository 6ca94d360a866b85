package scheduler

import (
	"context"

	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(func(cfg config.Config) Config {
		return Config{
			PaymentReminderAfter: cfg.PaymentReminderAfter,
			AutoCancelAfter:      cfg.AutoCancelAfter,
			PendingNudgeAfter:    cfg.PendingNudgeAfter,
		}
	}),
	fx.Provide(New),
)

// Start runs the scheduler loop for the lifetime of the app.
func Start(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
