package notify

import "context"

// Provider delivers a rendered message. Implementations must be safe
// for concurrent use.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// NoOpProvider is used when SMTP is not configured; every send succeeds
// silently so notification failures never block order flow.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
