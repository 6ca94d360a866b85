package notify

import (
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewFromConfig),
	fx.Provide(func(provider Provider, log *zap.Logger, cfg config.Config) *Mailer {
		return NewMailer(provider, log, cfg.OperatorEmail, cfg.FrontendURL)
	}),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMTPHost == "" {
		log.Warn("smtp not configured, notifications disabled")
		return &NoOpProvider{}
	}
	return NewSMTP(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}
