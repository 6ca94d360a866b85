package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code int) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Preload("Items").First(&order, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindByGatewayCode(ctx context.Context, db *gorm.DB, gatewayCode int64) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Preload("Items").First(&order, "gateway_order_code = ?", gatewayCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter orderdomain.ListFilter) ([]orderdomain.Order, error) {
	q := db.WithContext(ctx).Preload("Items").Order("created_at DESC")
	if filter.OrderStatus != "" {
		q = q.Where("order_status = ?", filter.OrderStatus)
	}
	if filter.PaymentStatus != "" {
		q = q.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var orders []orderdomain.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func stampColumn(to orderdomain.OrderStatus) string {
	switch to {
	case orderdomain.OrderStatusConfirmed:
		return "confirmed_at"
	case orderdomain.OrderStatusProcessing:
		return "processing_at"
	case orderdomain.OrderStatusCompleted:
		return "completed_at"
	case orderdomain.OrderStatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

func (r *repo) UpdateOrderStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to orderdomain.OrderStatus, at time.Time) (bool, error) {
	sets := map[string]any{
		"order_status": to,
		"updated_at":   at,
	}
	if col := stampColumn(to); col != "" {
		sets[col] = at
	}

	res := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("id = ? AND order_status = ?", id, from).
		Updates(sets)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) CancelActive(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, unpaidOnly bool) (bool, error) {
	q := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("id = ? AND order_status IN ?", id, []orderdomain.OrderStatus{
			orderdomain.OrderStatusPending,
			orderdomain.OrderStatusConfirmed,
			orderdomain.OrderStatusProcessing,
		})
	if unpaidOnly {
		q = q.Where("payment_status = ?", orderdomain.PaymentStatusPending)
	}

	res := q.Updates(map[string]any{
		"order_status": orderdomain.OrderStatusCancelled,
		"cancelled_at": at,
		"updated_at":   at,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to orderdomain.PaymentStatus, at time.Time) (bool, error) {
	sets := map[string]any{
		"payment_status": to,
		"updated_at":     at,
	}
	if to == orderdomain.PaymentStatusPaid {
		sets["paid_at"] = at
	}

	res := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("id = ? AND payment_status = ?", id, from).
		Updates(sets)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetGatewayLink(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayCode int64, linkID, checkoutURL, qrCode string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET gateway_order_code = ?, payment_link_id = ?, checkout_url = ?, qr_code = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND payment_link_id IS NULL`,
		gatewayCode, linkID, checkoutURL, qrCode, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetItemDeliveredAccount(ctx context.Context, db *gorm.DB, itemID snowflake.ID, account string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE order_items SET delivered_account = ? WHERE id = ? AND delivered_account IS NULL`,
		account, itemID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET payment_reminder_sent_at = ?, updated_at = ? WHERE id = ? AND payment_reminder_sent_at IS NULL`,
		at, at, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
