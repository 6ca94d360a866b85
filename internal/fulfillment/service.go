// Package fulfillment walks a paid order through its remaining
// lifecycle and delivers preloaded credentials.
package fulfillment

import (
	"context"
	"errors"

	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"github.com/KeyT9999/keyt-shop-backend/internal/notify"
	"github.com/KeyT9999/keyt-shop-backend/internal/observability/metrics"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock       clock.Clock
	orders      orderdomain.Repository
	inventory   catalogdomain.Service
	catalogRepo catalogdomain.Repository
	subs        subscriptiondomain.Service
	mailer      *notify.Mailer
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Orders      orderdomain.Repository
	Inventory   catalogdomain.Service
	CatalogRepo catalogdomain.Repository
	Subs        subscriptiondomain.Service
	Mailer      *notify.Mailer
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("fulfillment.service"),
		clock:       p.Clock,
		orders:      p.Orders,
		inventory:   p.Inventory,
		catalogRepo: p.CatalogRepo,
		subs:        p.Subs,
		mailer:      p.Mailer,
	}
}

// Eligible reports whether the order can be auto-completed: every item
// is a single-quantity preloaded-account product with an unused
// credential still in its pool.
func (s *Service) Eligible(ctx context.Context, order *orderdomain.Order) (bool, error) {
	if len(order.Items) == 0 {
		return false, nil
	}

	for _, item := range order.Items {
		if !item.IsPreloadedAccount || item.Quantity != 1 {
			return false, nil
		}
		if item.DeliveredAccount != nil {
			continue
		}
		unused, err := s.inventory.UnusedAccounts(ctx, item.ProductID)
		if err != nil {
			return false, err
		}
		if unused < 1 {
			return false, nil
		}
	}
	return true, nil
}

// FinalizeItems performs the per-item delivery on the caller's
// transaction: preloaded items take one pool credential, plain items
// consume their stock reservation. It must run in the same transaction
// as the processing -> completed flip so a caller that loses the flip,
// or fails mid-pass, leaves no side effects behind.
func (s *Service) FinalizeItems(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	now := s.clock.Now()
	for i := range order.Items {
		item := &order.Items[i]

		if item.IsPreloadedAccount {
			if item.DeliveredAccount != nil {
				continue
			}
			account, err := s.catalogRepo.AllocateAccount(ctx, tx, item.ProductID, order.ID, now)
			if err != nil {
				return err
			}
			if _, err := s.orders.SetItemDeliveredAccount(ctx, tx, item.ID, account); err != nil {
				return err
			}
			item.DeliveredAccount = &account
			continue
		}

		ok, err := s.catalogRepo.DeductStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return catalogdomain.ErrInsufficientStock
		}
	}
	return nil
}

// AutoComplete walks the order pending -> confirmed -> processing and
// finishes at completed. The completion flip and the per-item delivery
// share one transaction: a concurrent completer that loses the flip
// exits with no side effects, and a pool exhausted mid-pass rolls the
// whole pass back, parking the order in processing for the operator.
func (s *Service) AutoComplete(ctx context.Context, order *orderdomain.Order) error {
	now := s.clock.Now()

	steps := []struct{ from, to orderdomain.OrderStatus }{
		{orderdomain.OrderStatusPending, orderdomain.OrderStatusConfirmed},
		{orderdomain.OrderStatusConfirmed, orderdomain.OrderStatusProcessing},
	}
	for _, step := range steps {
		if _, err := s.orders.UpdateOrderStatus(ctx, s.db, order.ID, step.from, step.to, now); err != nil {
			return err
		}
	}

	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done, err := s.orders.UpdateOrderStatus(ctx, tx, order.ID,
			orderdomain.OrderStatusProcessing, orderdomain.OrderStatusCompleted, s.clock.Now())
		if err != nil {
			return err
		}
		if !done {
			// Another worker finished the walk; it owns the side effects.
			return nil
		}
		if err := s.FinalizeItems(ctx, tx, order); err != nil {
			return err
		}
		won = true
		return nil
	})
	if errors.Is(err, catalogdomain.ErrPoolExhausted) {
		metrics.PoolExhaustions.Inc()
		s.log.Warn("credential pool exhausted mid-fulfillment",
			zap.Int64("order_id", int64(order.ID)),
			zap.Int("code", order.Code),
		)
		return err
	}
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	order.OrderStatus = orderdomain.OrderStatusCompleted

	if err := s.CreateSubscriptions(ctx, order); err != nil {
		return err
	}

	if err := s.mailer.OrderCompleted(ctx, order, CompletionInstructions(order)); err != nil {
		s.log.Warn("completed email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	return nil
}

// CreateSubscriptions records one entitlement per item for a paid
// order. Replays are absorbed by the unique order-item guard.
func (s *Service) CreateSubscriptions(ctx context.Context, order *orderdomain.Order) error {
	if order.PaymentStatus != orderdomain.PaymentStatusPaid {
		return nil
	}

	start := s.clock.Now()
	for _, item := range order.Items {
		end, parsed := entitlementEnd(start, item.ProductName, item.BillingCycle)
		if !parsed {
			metrics.SubscriptionDefaultDurations.Inc()
			s.log.Warn("unparseable subscription duration, defaulting to one year",
				zap.String("product", item.ProductName),
				zap.String("billing_cycle", item.BillingCycle),
			)
		}

		if _, err := s.subs.Create(ctx, subscriptiondomain.CreateRequest{
			OrderID:       order.ID,
			OrderItemID:   item.ID,
			ProductID:     item.ProductID,
			CustomerName:  order.CustomerName,
			CustomerEmail: order.CustomerEmail,
			ServiceName:   item.ProductName,
			Account:       item.DeliveredAccount,
			StartAt:       start,
			EndAt:         end,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CompletionInstructions collects the distinct non-empty instruction
// texts across the order's items, in item order.
func CompletionInstructions(order *orderdomain.Order) []string {
	seen := make(map[string]struct{}, len(order.Items))
	out := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ins := item.CompletionInstructions
		if ins == "" {
			continue
		}
		if _, ok := seen[ins]; ok {
			continue
		}
		seen[ins] = struct{}{}
		out = append(out, ins)
	}
	return out
}

var Module = fx.Module("fulfillment.service",
	fx.Provide(NewService),
)
