// Package domain contains persistence models for delivered-service
// subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is the entitlement window created when a paid order item
// is fulfilled. OrderItemID carries a unique index so a replayed
// fulfillment cannot create a second row for the same item.
type Subscription struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrderID     snowflake.ID `gorm:"not null;index"`
	OrderItemID snowflake.ID `gorm:"not null;uniqueIndex"`
	ProductID   snowflake.ID `gorm:"not null;index"`

	CustomerName  string `gorm:"type:text;not null"`
	CustomerEmail string `gorm:"type:text;not null;index"`
	ServiceName   string `gorm:"type:text;not null"`

	Account *string `gorm:"type:text"`

	StartAt time.Time          `gorm:"not null"`
	EndAt   time.Time          `gorm:"not null;index"`
	Status  SubscriptionStatus `gorm:"type:text;not null;index"`

	PreExpiryNotified bool       `gorm:"not null;default:false"`
	NotifiedAt        *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
