// Package reconcile applies gateway payment outcomes to orders. Both
// channels (webhook push and client-triggered poll) funnel into the
// same guarded transitions, so replays and races collapse into no-ops.
package reconcile

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"github.com/KeyT9999/keyt-shop-backend/internal/fulfillment"
	"github.com/KeyT9999/keyt-shop-backend/internal/notify"
	"github.com/KeyT9999/keyt-shop-backend/internal/observability/metrics"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/payos"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway is the slice of the PayOS client reconciliation needs.
type Gateway interface {
	VerifyWebhookData(data map[string]any, signature string) bool
	GetPaymentInfo(ctx context.Context, orderCode int64) (*payos.PaymentInfo, error)
}

// WebhookPayload is the body PayOS posts to the webhook endpoint.
type WebhookPayload struct {
	Code      string         `json:"code"`
	Desc      string         `json:"desc"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data"`
	Signature string         `json:"signature"`
}

const payosSuccessCode = "00"

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock   clock.Clock
	orders  orderdomain.Repository
	catalog catalogdomain.Service
	fulfill *fulfillment.Service
	mailer  *notify.Mailer
	gateway Gateway
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Orders  orderdomain.Repository
	Catalog catalogdomain.Service
	Fulfill *fulfillment.Service
	Mailer  *notify.Mailer
	Gateway Gateway
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reconcile.service"),
		clock:   p.Clock,
		orders:  p.Orders,
		catalog: p.Catalog,
		fulfill: p.Fulfill,
		mailer:  p.Mailer,
		gateway: p.Gateway,
	}
}

// ProcessWebhook handles one gateway notification. The returned outcome
// is for logging; the HTTP layer answers 200 regardless so the gateway
// never retries storms against us.
func (s *Service) ProcessWebhook(ctx context.Context, payload WebhookPayload) (string, error) {
	outcome, err := s.processWebhook(ctx, payload)
	metrics.ReconcileOutcomes.WithLabelValues(metrics.ChannelWebhook, outcome).Inc()
	return outcome, err
}

func (s *Service) processWebhook(ctx context.Context, payload WebhookPayload) (string, error) {
	if len(payload.Data) == 0 {
		return metrics.OutcomeIgnored, nil
	}

	if !s.gateway.VerifyWebhookData(payload.Data, payload.Signature) {
		s.log.Warn("webhook signature rejected")
		return metrics.OutcomeInvalidSignature, nil
	}

	gatewayCode, ok := numericField(payload.Data, "orderCode")
	if !ok {
		return metrics.OutcomeIgnored, nil
	}

	order, err := s.orders.FindByGatewayCode(ctx, s.db, gatewayCode)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if order == nil {
		s.log.Warn("webhook for unknown gateway order", zap.Int64("gateway_order_code", gatewayCode))
		return metrics.OutcomeUnknownOrder, nil
	}

	status, _ := payload.Data["status"].(string)
	status = strings.ToUpper(status)

	switch {
	case payload.Code == payosSuccessCode && payload.Success && (status == "" || status == payos.StatusPaid):
		return s.applyPaid(ctx, order)
	case status == payos.StatusExpired:
		return s.applyFailed(ctx, order, "liên kết thanh toán đã hết hạn")
	case status == payos.StatusCancelled:
		return s.applyFailed(ctx, order, "thanh toán đã bị hủy")
	case !payload.Success:
		return s.applyFailed(ctx, order, payload.Desc)
	default:
		return metrics.OutcomeIgnored, nil
	}
}

// ProcessPoll asks the gateway for the authoritative state and applies
// it. It is the recovery path for lost webhooks.
func (s *Service) ProcessPoll(ctx context.Context, orderID snowflake.ID, ownerEmail string) (*orderdomain.Order, error) {
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if ownerEmail != "" && !strings.EqualFold(ownerEmail, order.CustomerEmail) {
		return nil, orderdomain.ErrNotOwner
	}

	if order.GatewayOrderCode == nil || order.PaymentStatus != orderdomain.PaymentStatusPending {
		return order, nil
	}

	info, err := s.gateway.GetPaymentInfo(ctx, *order.GatewayOrderCode)
	if err != nil {
		return nil, err
	}

	var outcome string
	switch strings.ToUpper(info.Status) {
	case payos.StatusPaid:
		outcome, err = s.applyPaid(ctx, order)
	case payos.StatusExpired:
		outcome, err = s.applyFailed(ctx, order, "liên kết thanh toán đã hết hạn")
	case payos.StatusCancelled:
		outcome, err = s.applyFailed(ctx, order, "thanh toán đã bị hủy")
	default:
		outcome = metrics.OutcomeIgnored
	}
	metrics.ReconcileOutcomes.WithLabelValues(metrics.ChannelPoll, outcome).Inc()
	if err != nil {
		return nil, err
	}

	refreshed, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return refreshed, nil
}

// applyPaid flips the payment axis to paid exactly once and triggers
// fulfillment side effects on the winning transition only.
func (s *Service) applyPaid(ctx context.Context, order *orderdomain.Order) (string, error) {
	now := s.clock.Now()

	applied, err := s.orders.UpdatePaymentStatus(ctx, s.db, order.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusPaid, now)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if !applied {
		// The snapshot we were handed may predate a poll that marked the
		// order failed; decide the override on the current row, not the
		// snapshot. The gateway's word wins over a local failure.
		current, err := s.orders.FindByID(ctx, s.db, order.ID)
		if err != nil {
			return metrics.OutcomeError, err
		}
		if current == nil {
			return metrics.OutcomeError, orderdomain.ErrOrderNotFound
		}
		if current.PaymentStatus == orderdomain.PaymentStatusFailed {
			applied, err = s.orders.UpdatePaymentStatus(ctx, s.db, order.ID,
				orderdomain.PaymentStatusFailed, orderdomain.PaymentStatusPaid, now)
			if err != nil {
				return metrics.OutcomeError, err
			}
		}
	}
	if !applied {
		return metrics.OutcomeDuplicate, nil
	}

	order, err = s.orders.FindByID(ctx, s.db, order.ID)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if order == nil {
		return metrics.OutcomeError, orderdomain.ErrOrderNotFound
	}

	if err := s.mailer.OrderPaidOperator(ctx, order); err != nil {
		s.log.Warn("paid operator email failed", zap.Error(err), zap.Int("code", order.Code))
	}

	// A cancelled order keeps its payment record but is never fulfilled;
	// the operator refunds it by hand.
	if order.OrderStatus == orderdomain.OrderStatusCancelled {
		s.log.Warn("payment landed on cancelled order",
			zap.Int("code", order.Code), zap.Int64("order_id", int64(order.ID)))
		return metrics.OutcomeApplied, nil
	}

	eligible, err := s.fulfill.Eligible(ctx, order)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if eligible {
		if err := s.fulfill.AutoComplete(ctx, order); err != nil {
			return metrics.OutcomeError, err
		}
	} else {
		if err := s.mailer.PaymentSuccess(ctx, order); err != nil {
			s.log.Warn("payment success email failed", zap.Error(err), zap.Int("code", order.Code))
		}
	}
	return metrics.OutcomeApplied, nil
}

func (s *Service) applyFailed(ctx context.Context, order *orderdomain.Order, reason string) (string, error) {
	applied, err := s.orders.UpdatePaymentStatus(ctx, s.db, order.ID,
		orderdomain.PaymentStatusPending, orderdomain.PaymentStatusFailed, s.clock.Now())
	if err != nil {
		return metrics.OutcomeError, err
	}
	if !applied {
		return metrics.OutcomeDuplicate, nil
	}

	for _, item := range order.Items {
		if item.IsPreloadedAccount {
			continue
		}
		if err := s.catalog.ReleaseReservation(ctx, item.ProductID, item.Quantity); err != nil {
			s.log.Warn("release reservation failed", zap.Error(err),
				zap.Int64("product_id", int64(item.ProductID)))
		}
	}

	if err := s.mailer.PaymentFailed(ctx, order, reason); err != nil {
		s.log.Warn("payment failed email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	return metrics.OutcomeApplied, nil
}

func numericField(data map[string]any, key string) (int64, bool) {
	switch value := data[key].(type) {
	case float64:
		return int64(value), true
	case int64:
		return value, true
	case int:
		return int64(value), true
	default:
		return 0, false
	}
}

var Module = fx.Module("reconcile.service",
	fx.Provide(NewService),
	fx.Provide(func(client *payos.Client) Gateway { return client }),
)
