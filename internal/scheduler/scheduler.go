// Package scheduler runs the periodic order-lifecycle jobs: payment
// reminders, unpaid auto-cancel, operator nudges, the daily digest and
// subscription expiry notices. Every job is idempotent; a crashed run
// is simply retried on the next tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"github.com/KeyT9999/keyt-shop-backend/internal/notify"
	"github.com/KeyT9999/keyt-shop-backend/internal/observability/metrics"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"github.com/KeyT9999/keyt-shop-backend/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Orders          orderdomain.Repository
	Catalog         catalogdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Mailer          *notify.Mailer
	Config          Config `optional:"true"`
}

type Scheduler struct {
	db  *gorm.DB
	log *zap.Logger
	cfg Config

	clock   clock.Clock
	orders  orderdomain.Repository
	catalog catalogdomain.Service
	subs    subscriptiondomain.Service
	mailer  *notify.Mailer
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Orders == nil || p.Catalog == nil || p.SubscriptionSvc == nil || p.Mailer == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		orders:  p.Orders,
		catalog: p.Catalog,
		subs:    p.SubscriptionSvc,
		mailer:  p.Mailer,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	metrics.SchedulerJobRuns.WithLabelValues(name).Inc()
	start := s.clock.Now()

	err := fn(ctx)
	if err == nil {
		s.log.Debug("job finished",
			zap.String("job", name),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	}

	metrics.SchedulerJobErrors.WithLabelValues(name).Inc()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time. Daily jobs run on
// the first tick of each UTC day.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"payment_reminder", s.PaymentReminderJob},
		{"auto_cancel", s.AutoCancelJob},
	}
	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, 30*time.Second, job.Run))
		}
	}

	due, dueErr := s.dailyDue(parent)
	err = errors.Join(err, dueErr)
	if due {
		dailyJobs := []struct {
			Name string
			Run  func(context.Context) error
		}{
			{"pending_nudge", s.PendingNudgeJob},
			{"daily_digest", s.DailyDigestJob},
			{"subscription_expiry", s.SubscriptionExpiryJob},
			{"expire_subscriptions", s.ExpireSubscriptionsJob},
		}
		for _, job := range dailyJobs {
			if s.isJobEnabled(job.Name) {
				err = errors.Join(err, s.runJob(parent, job.Name, 5*time.Minute, job.Run))
			}
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means everything runs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

const dailyGateName = "daily"

// dailyDue claims the current UTC day in scheduler_job_state. The claim
// is persisted, so a process restarted on the same day does not re-run
// the daily jobs, and only one replica wins the claim.
func (s *Scheduler) dailyDue(ctx context.Context) (bool, error) {
	day := s.clock.Now().UTC().Format("2006-01-02")

	res := s.db.WithContext(ctx).Exec(
		`UPDATE scheduler_job_state SET last_day = ?, updated_at = ?
		 WHERE name = ? AND last_day <> ?`,
		day, s.clock.Now(), dailyGateName, day,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	createErr := s.db.WithContext(ctx).Create(&JobState{
		Name:      dailyGateName,
		LastDay:   day,
		UpdatedAt: s.clock.Now(),
	}).Error
	if createErr == nil {
		return true, nil
	}
	if db.IsDuplicateKeyErr(createErr) {
		// Gate row already carries today's day.
		return false, nil
	}
	return false, createErr
}

// PaymentReminderJob mails customers whose order has been unpaid past
// the reminder threshold. The reminder flag is set after a successful
// send, so a crash before the send retries and a crash after it costs
// at most one duplicate mail.
func (s *Scheduler) PaymentReminderJob(ctx context.Context) error {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.PaymentReminderAfter)
	var jobErr error

	for {
		var orders []orderdomain.Order
		err := s.db.WithContext(ctx).Raw(
			`SELECT * FROM orders
			 WHERE order_status = ? AND payment_status = ?
			   AND created_at <= ? AND payment_reminder_sent_at IS NULL
			 ORDER BY created_at
			 LIMIT ?`,
			orderdomain.OrderStatusPending, orderdomain.PaymentStatusPending,
			cutoff, s.cfg.BatchSize,
		).Scan(&orders).Error
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			break
		}

		processed := 0
		for i := range orders {
			order := &orders[i]
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}

			if err := s.mailer.PaymentReminder(ctx, order); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("payment reminder failed", zap.Error(err), zap.Int("code", order.Code))
				continue
			}
			marked, err := s.orders.MarkReminderSent(ctx, s.db, order.ID, now)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				continue
			}
			if marked {
				processed++
			}
		}
		if processed == 0 {
			break
		}
	}

	return jobErr
}

// AutoCancelJob cancels orders unpaid past the cancel threshold. The
// guard requires both axes still pending, so an order paid between the
// select and the update survives.
func (s *Scheduler) AutoCancelJob(ctx context.Context) error {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.AutoCancelAfter)
	var jobErr error

	var candidates []orderdomain.Order
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM orders
		 WHERE order_status = ? AND payment_status = ? AND created_at <= ?
		 ORDER BY created_at
		 LIMIT ?`,
		orderdomain.OrderStatusPending, orderdomain.PaymentStatusPending,
		cutoff, s.cfg.BatchSize,
	).Scan(&candidates).Error
	if err != nil {
		return err
	}

	for i := range candidates {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		cancelled, err := s.orders.CancelActive(ctx, s.db, candidates[i].ID, now, true)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if !cancelled {
			continue
		}

		order, err := s.orders.FindByID(ctx, s.db, candidates[i].ID)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if order == nil {
			continue
		}

		for _, item := range order.Items {
			if item.IsPreloadedAccount {
				continue
			}
			if err := s.catalog.ReleaseReservation(ctx, item.ProductID, item.Quantity); err != nil {
				jobErr = errors.Join(jobErr, err)
			}
		}

		if err := s.mailer.OrderCancelled(ctx, order, "quá hạn thanh toán"); err != nil {
			s.log.Warn("auto-cancel email failed", zap.Error(err), zap.Int("code", order.Code))
		}
		s.log.Info("order auto-cancelled",
			zap.Int("code", order.Code),
			zap.Int64("order_id", int64(order.ID)),
		)
	}

	return jobErr
}

// PendingNudgeJob tells the operator about paid orders that sat in
// pending too long. Read-only: it never mutates order state.
func (s *Scheduler) PendingNudgeJob(ctx context.Context) error {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.PendingNudgeAfter)
	var jobErr error

	var orders []orderdomain.Order
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM orders
		 WHERE order_status = ? AND payment_status = ? AND paid_at <= ?
		 ORDER BY paid_at
		 LIMIT ?`,
		orderdomain.OrderStatusPending, orderdomain.PaymentStatusPaid,
		cutoff, s.cfg.BatchSize,
	).Scan(&orders).Error
	if err != nil {
		return err
	}

	for i := range orders {
		order := &orders[i]
		age := now.Sub(order.CreatedAt)
		if order.PaidAt != nil {
			age = now.Sub(*order.PaidAt)
		}
		if err := s.mailer.PendingOrderNudge(ctx, order, age); err != nil {
			jobErr = errors.Join(jobErr, err)
		}
	}

	return jobErr
}

// DailyDigestJob summarizes yesterday-to-now activity for the operator.
func (s *Scheduler) DailyDigestJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats := notify.DigestStats{Date: now.Format("02/01/2006")}

	type countRow struct{ N int64 }
	queries := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&stats.NewOrders, `SELECT COUNT(*) AS n FROM orders WHERE created_at >= ?`, []any{dayStart}},
		{&stats.PaidOrders, `SELECT COUNT(*) AS n FROM orders WHERE paid_at >= ?`, []any{dayStart}},
		{&stats.CompletedOrders, `SELECT COUNT(*) AS n FROM orders WHERE completed_at >= ?`, []any{dayStart}},
		{&stats.CancelledOrders, `SELECT COUNT(*) AS n FROM orders WHERE cancelled_at >= ?`, []any{dayStart}},
		{&stats.Revenue, `SELECT COALESCE(SUM(total_amount), 0) AS n FROM orders WHERE paid_at >= ?`, []any{dayStart}},
	}
	for _, q := range queries {
		var row countRow
		if err := s.db.WithContext(ctx).Raw(q.query, q.args...).Scan(&row).Error; err != nil {
			return err
		}
		*q.dest = row.N
	}

	// Orders needing attention: paid but unconfirmed, or stuck in
	// processing for over a day.
	var attention []orderdomain.Order
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM orders
		 WHERE (order_status = ? AND payment_status = ?)
		    OR (order_status = ? AND updated_at <= ?)
		 ORDER BY created_at
		 LIMIT 10`,
		orderdomain.OrderStatusPending, orderdomain.PaymentStatusPaid,
		orderdomain.OrderStatusProcessing, s.clock.Now().Add(-24*time.Hour),
	).Scan(&attention).Error
	if err != nil {
		return err
	}

	return s.mailer.DailySummary(ctx, stats, attention)
}

// SubscriptionExpiryJob reminds customers a day ahead of expiry, marks
// them notified, and sends the operator both tomorrow's and today's
// expiry digests.
func (s *Scheduler) SubscriptionExpiryJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error

	expiring, err := s.subs.ExpiringTomorrow(ctx, now)
	if err != nil {
		return err
	}

	notified := make([]subscriptiondomain.Subscription, 0, len(expiring))
	for _, sub := range expiring {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		if err := s.mailer.SubscriptionExpiring(ctx, sub); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("expiry notice failed", zap.Error(err),
				zap.Int64("subscription_id", int64(sub.ID)))
			continue
		}
		marked, err := s.subs.MarkNotified(ctx, sub.ID)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if marked {
			notified = append(notified, sub)
		}
	}

	if err := s.mailer.SubscriptionExpiryDigest(ctx, "Dịch vụ hết hạn ngày mai", notified); err != nil {
		jobErr = errors.Join(jobErr, err)
	}

	today, err := s.subs.ExpiringToday(ctx, now)
	if err != nil {
		return errors.Join(jobErr, err)
	}
	if err := s.mailer.SubscriptionExpiryDigest(ctx, "Dịch vụ hết hạn hôm nay", today); err != nil {
		jobErr = errors.Join(jobErr, err)
	}

	return jobErr
}

// ExpireSubscriptionsJob flips overdue active subscriptions to expired.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) error {
	expired, err := s.subs.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", expired))
	}
	return nil
}
