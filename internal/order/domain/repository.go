package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows admin order listings.
type ListFilter struct {
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

// Repository persists orders. Conditional updates return false instead
// of an error when the guard did not match; callers decide whether that
// is a conflict or a benign duplicate.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByCode(ctx context.Context, db *gorm.DB, code int) (*Order, error)
	FindByGatewayCode(ctx context.Context, db *gorm.DB, gatewayCode int64) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Order, error)

	// UpdateOrderStatus moves the fulfillment status from exactly `from`
	// to `to`, stamping the transition timestamp for `to`.
	UpdateOrderStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to OrderStatus, at time.Time) (bool, error)
	// CancelActive cancels an order still in a non-terminal state. With
	// unpaidOnly the guard also requires payment_status pending, which is
	// what keeps auto-cancel from racing a paid webhook.
	CancelActive(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, unpaidOnly bool) (bool, error)
	// UpdatePaymentStatus moves the payment axis; paid stamps paid_at.
	UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PaymentStatus, at time.Time) (bool, error)

	// SetGatewayLink attaches gateway link fields once; it refuses to
	// overwrite an existing link.
	SetGatewayLink(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayCode int64, linkID, checkoutURL, qrCode string) (bool, error)
	// SetItemDeliveredAccount writes the credential once per item.
	SetItemDeliveredAccount(ctx context.Context, db *gorm.DB, itemID snowflake.ID, account string) (bool, error)
	MarkReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
