package scheduler

import (
	"time"
)

// Config controls scheduler intervals, thresholds and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int

	// PaymentReminderAfter is how long an unpaid order sits before the
	// customer gets a reminder. AutoCancelAfter is when it is cancelled.
	PaymentReminderAfter time.Duration
	AutoCancelAfter      time.Duration
	// PendingNudgeAfter is how long a paid order may wait for operator
	// confirmation before the operator is nudged.
	PendingNudgeAfter time.Duration

	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:          time.Minute,
		BatchSize:            50,
		PaymentReminderAfter: 2 * time.Hour,
		AutoCancelAfter:      6 * time.Hour,
		PendingNudgeAfter:    24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PaymentReminderAfter <= 0 {
		c.PaymentReminderAfter = defaults.PaymentReminderAfter
	}
	if c.AutoCancelAfter <= 0 {
		c.AutoCancelAfter = defaults.AutoCancelAfter
	}
	if c.PendingNudgeAfter <= 0 {
		c.PendingNudgeAfter = defaults.PendingNudgeAfter
	}
	return c
}
