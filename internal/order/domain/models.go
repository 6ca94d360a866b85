// Package domain contains persistence models for orders.
//
// An order carries two independent status axes: OrderStatus tracks the
// fulfillment lifecycle and PaymentStatus tracks money. They only meet
// at guarded transitions (auto-cancel requires both pending; a cancelled
// order can still be marked paid by a late webhook).
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderStatus represents the fulfillment lifecycle state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus represents the money axis.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Order is a customer purchase. Code is the short human-facing number;
// GatewayOrderCode is the reference the payment gateway echoes back in
// webhooks and polls.
type Order struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Code int          `gorm:"uniqueIndex;not null"`

	CustomerName  string `gorm:"type:text;not null"`
	CustomerEmail string `gorm:"type:text;not null;index"`
	CustomerPhone string `gorm:"type:text"`
	Note          string `gorm:"type:text"`

	OrderStatus   OrderStatus   `gorm:"type:text;not null;index"`
	PaymentStatus PaymentStatus `gorm:"type:text;not null;index"`

	TotalAmount   int64  `gorm:"not null"`
	Currency      string `gorm:"type:text;not null;default:VND"`
	PaymentMethod string `gorm:"type:text"`

	GatewayOrderCode *int64  `gorm:"uniqueIndex"`
	PaymentLinkID    *string `gorm:"type:text"`
	CheckoutURL      *string `gorm:"type:text"`
	QRCode           *string `gorm:"type:text"`

	PaidAt                *time.Time `gorm:""`
	ConfirmedAt           *time.Time `gorm:""`
	ProcessingAt          *time.Time `gorm:""`
	CompletedAt           *time.Time `gorm:""`
	CancelledAt           *time.Time `gorm:""`
	PaymentReminderSentAt *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem snapshots the product at purchase time so later catalog
// edits do not change what was sold.
type OrderItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	ProductID snowflake.ID `gorm:"not null;index"`

	ProductName            string `gorm:"type:text;not null"`
	Quantity               int    `gorm:"not null"`
	UnitPrice              int64  `gorm:"not null"`
	IsPreloadedAccount     bool   `gorm:"not null;default:false"`
	BillingCycle           string `gorm:"type:text"`
	CompletionInstructions string `gorm:"type:text"`

	DeliveredAccount   *string           `gorm:"type:text"`
	RequiredFieldsData datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// Terminal reports whether the fulfillment lifecycle can no longer move.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}
