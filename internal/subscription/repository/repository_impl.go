package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByOrderItemID(ctx context.Context, db *gorm.DB, orderItemID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).First(&sub, "order_item_id = ?", orderItemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) ListByEmail(ctx context.Context, db *gorm.DB, email string) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("customer_email = ?", email).
		Order("end_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ListExpiringBetween(ctx context.Context, db *gorm.DB, from, to time.Time, onlyUnnotified bool) ([]subscriptiondomain.Subscription, error) {
	q := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.SubscriptionStatusActive).
		Where("end_at >= ? AND end_at < ?", from, to)
	if onlyUnnotified {
		q = q.Where("pre_expiry_notified = ?", false)
	}

	var subs []subscriptiondomain.Subscription
	if err := q.Order("end_at").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) MarkPreExpiryNotified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET pre_expiry_notified = ?, notified_at = ?, updated_at = ?
		 WHERE id = ? AND pre_expiry_notified = ?`,
		true, at, at, id, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND end_at < ?`,
		subscriptiondomain.SubscriptionStatusExpired, now,
		subscriptiondomain.SubscriptionStatusActive, now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
