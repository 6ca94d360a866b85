package payos

import (
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payos",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *Client {
		return NewClient(Config{
			BaseURL:     cfg.PayOSBaseURL,
			ClientID:    cfg.PayOSClientID,
			APIKey:      cfg.PayOSAPIKey,
			ChecksumKey: cfg.PayOSChecksumKey,
		}, log)
	}),
)
