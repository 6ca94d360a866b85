package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByOrderItemID(ctx context.Context, db *gorm.DB, orderItemID snowflake.ID) (*Subscription, error)
	ListByEmail(ctx context.Context, db *gorm.DB, email string) ([]Subscription, error)
	// ListExpiringBetween returns active subscriptions whose EndAt falls
	// inside [from, to). With onlyUnnotified the pre-expiry flag filters
	// out rows already reminded.
	ListExpiringBetween(ctx context.Context, db *gorm.DB, from, to time.Time, onlyUnnotified bool) ([]Subscription, error)
	MarkPreExpiryNotified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
