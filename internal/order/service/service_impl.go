package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"github.com/KeyT9999/keyt-shop-backend/internal/fulfillment"
	"github.com/KeyT9999/keyt-shop-backend/internal/notify"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/payos"
	"github.com/KeyT9999/keyt-shop-backend/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const orderCodeAttempts = 10

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	cfg config.Config

	genID   *snowflake.Node
	clock   clock.Clock
	repo    orderdomain.Repository
	catalog catalogdomain.Service
	gateway *payos.Client
	fulfill *fulfillment.Service
	mailer  *notify.Mailer
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    orderdomain.Repository
	Catalog catalogdomain.Service
	Gateway *payos.Client
	Fulfill *fulfillment.Service
	Mailer  *notify.Mailer
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		cfg:     p.Cfg,
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		gateway: p.Gateway,
		fulfill: p.Fulfill,
		mailer:  p.Mailer,
	}
}

func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.Order, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, orderdomain.ErrInvalidCustomerName
	}
	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if email == "" || !strings.Contains(email, "@") {
		return nil, orderdomain.ErrInvalidCustomerEmail
	}
	if len(req.Items) == 0 {
		return nil, orderdomain.ErrEmptyItems
	}

	now := s.clock.Now()
	orderID := s.genID.Generate()

	var total int64
	items := make([]orderdomain.OrderItem, 0, len(req.Items))
	// Plain-stock reservations already taken, released on any later
	// failure in this request.
	reserved := make([]orderdomain.OrderItem, 0, len(req.Items))
	release := func() {
		for _, item := range reserved {
			if err := s.catalog.ReleaseReservation(ctx, item.ProductID, item.Quantity); err != nil {
				s.log.Warn("release reservation failed", zap.Error(err),
					zap.Int64("product_id", int64(item.ProductID)))
			}
		}
	}

	for _, reqItem := range req.Items {
		if reqItem.Quantity <= 0 {
			release()
			return nil, orderdomain.ErrInvalidQuantity
		}

		productID, err := snowflake.ParseString(strings.TrimSpace(reqItem.ProductID))
		if err != nil {
			release()
			return nil, catalogdomain.ErrProductNotFound
		}
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			release()
			return nil, err
		}

		if err := validateRequiredFields(product, reqItem.RequiredFieldsData); err != nil {
			release()
			return nil, err
		}

		if err := s.catalog.CheckAvailability(ctx, productID, reqItem.Quantity); err != nil {
			release()
			return nil, err
		}

		item := orderdomain.OrderItem{
			ID:                     s.genID.Generate(),
			OrderID:                orderID,
			ProductID:              product.ID,
			ProductName:            product.Name,
			Quantity:               reqItem.Quantity,
			UnitPrice:              product.Price,
			IsPreloadedAccount:     product.IsPreloadedAccount,
			BillingCycle:           product.BillingCycle,
			CompletionInstructions: product.CompletionInstructions,
			RequiredFieldsData:     datatypes.JSONMap(reqItem.RequiredFieldsData),
			CreatedAt:              now,
		}
		items = append(items, item)
		if !product.IsPreloadedAccount {
			reserved = append(reserved, item)
		}
		total += product.Price * int64(reqItem.Quantity)
	}

	if req.TotalAmount != total {
		release()
		return nil, orderdomain.ErrInvalidTotal
	}

	order := &orderdomain.Order{
		ID:            orderID,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Note:          strings.TrimSpace(req.Note),
		OrderStatus:   orderdomain.OrderStatusPending,
		PaymentStatus: orderdomain.PaymentStatusPending,
		TotalAmount:   total,
		Currency:      "VND",
		PaymentMethod: "payos",
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         items,
	}

	// The short code is random; on a collision we draw again rather
	// than walking the sequence, so codes stay unguessable.
	var inserted bool
	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		order.Code = 100000 + rand.Intn(900000)
		err := s.repo.Insert(ctx, s.db, order)
		if err == nil {
			inserted = true
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			release()
			return nil, err
		}
	}
	if !inserted {
		release()
		return nil, orderdomain.ErrOrderCodeExhausted
	}

	if err := s.mailer.OrderCreated(ctx, order); err != nil {
		s.log.Warn("order created email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	if err := s.mailer.OrderCreatedOperator(ctx, order); err != nil {
		s.log.Warn("order created operator email failed", zap.Error(err), zap.Int("code", order.Code))
	}

	return order, nil
}

func validateRequiredFields(product *catalogdomain.Product, data map[string]any) error {
	if product.RequiredFields == "" {
		return nil
	}
	for _, field := range strings.Split(product.RequiredFields, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		value, ok := data[field]
		if !ok {
			return orderdomain.ErrMissingRequiredField
		}
		if text, isString := value.(string); isString && strings.TrimSpace(text) == "" {
			return orderdomain.ErrMissingRequiredField
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID, ownerEmail string) (*orderdomain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if ownerEmail != "" && !strings.EqualFold(ownerEmail, order.CustomerEmail) {
		return nil, orderdomain.ErrNotOwner
	}
	return order, nil
}

func (s *Service) GetByCode(ctx context.Context, code int, ownerEmail string) (*orderdomain.Order, error) {
	order, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if ownerEmail != "" && !strings.EqualFold(ownerEmail, order.CustomerEmail) {
		return nil, orderdomain.ErrNotOwner
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, filter orderdomain.ListFilter) ([]orderdomain.Order, error) {
	return s.repo.List(ctx, s.db, filter)
}

// gatewayOrderCode derives a numeric reference that is unique enough
// for the gateway: millisecond timestamp suffix plus three random
// digits, mirroring what the storefront always sent to PayOS.
func (s *Service) gatewayOrderCode() int64 {
	millis := s.clock.Now().UnixMilli() % 1_000_000_000
	return millis*1000 + rand.Int63n(1000)
}

func (s *Service) CreatePaymentLink(ctx context.Context, id snowflake.ID, ownerEmail string) (*orderdomain.PaymentLink, error) {
	order, err := s.Get(ctx, id, ownerEmail)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != orderdomain.PaymentStatusPending || order.OrderStatus == orderdomain.OrderStatusCancelled {
		return nil, orderdomain.ErrInvalidTransition
	}

	if order.PaymentLinkID != nil && order.CheckoutURL != nil {
		return existingLink(order), nil
	}

	gatewayCode := s.gatewayOrderCode()
	linkItems := make([]payos.LinkItem, 0, len(order.Items))
	for _, item := range order.Items {
		linkItems = append(linkItems, payos.LinkItem{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}

	link, err := s.gateway.CreatePaymentLink(ctx, payos.CreateLinkRequest{
		OrderCode:   gatewayCode,
		Amount:      order.TotalAmount,
		Description: fmt.Sprintf("DH %06d", order.Code),
		BuyerName:   order.CustomerName,
		BuyerEmail:  order.CustomerEmail,
		BuyerPhone:  order.CustomerPhone,
		Items:       linkItems,
		ReturnURL:   s.paymentURL(s.cfg.PayOSReturnURL, order),
		CancelURL:   s.paymentURL(s.cfg.PayOSCancelURL, order),
	})
	if err != nil {
		return nil, err
	}

	set, err := s.repo.SetGatewayLink(ctx, s.db, order.ID, gatewayCode, link.PaymentLinkID, link.CheckoutURL, link.QRCode)
	if err != nil {
		return nil, err
	}
	if !set {
		// A concurrent request already attached a link; return that one
		// and let ours expire at the gateway.
		order, err = s.Get(ctx, id, ownerEmail)
		if err != nil {
			return nil, err
		}
		return existingLink(order), nil
	}

	return &orderdomain.PaymentLink{
		GatewayOrderCode: gatewayCode,
		PaymentLinkID:    link.PaymentLinkID,
		CheckoutURL:      link.CheckoutURL,
		QRCode:           link.QRCode,
	}, nil
}

func (s *Service) paymentURL(configured string, order *orderdomain.Order) string {
	if configured != "" {
		return configured
	}
	return fmt.Sprintf("%s/orders/%d/payment", s.cfg.FrontendURL, order.ID)
}

func existingLink(order *orderdomain.Order) *orderdomain.PaymentLink {
	link := &orderdomain.PaymentLink{}
	if order.GatewayOrderCode != nil {
		link.GatewayOrderCode = *order.GatewayOrderCode
	}
	if order.PaymentLinkID != nil {
		link.PaymentLinkID = *order.PaymentLinkID
	}
	if order.CheckoutURL != nil {
		link.CheckoutURL = *order.CheckoutURL
	}
	if order.QRCode != nil {
		link.QRCode = *order.QRCode
	}
	return link
}

func (s *Service) Confirm(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.transition(ctx, id, orderdomain.OrderStatusPending, orderdomain.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.OrderConfirmed(ctx, order); err != nil {
		s.log.Warn("confirmed email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	return order, nil
}

func (s *Service) StartProcessing(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.transition(ctx, id, orderdomain.OrderStatusConfirmed, orderdomain.OrderStatusProcessing)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.OrderProcessing(ctx, order); err != nil {
		s.log.Warn("processing email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	return order, nil
}

// Complete finishes an order the operator is handling: preloaded items
// still missing a credential get one allocated, plain items consume
// stock, and subscriptions are recorded when the order is paid. The
// completion flip and the item delivery share one transaction, so the
// loser of a concurrent completion leaves no side effects behind.
func (s *Service) Complete(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.Get(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if order.OrderStatus != orderdomain.OrderStatusProcessing {
		return nil, orderdomain.ErrInvalidTransition
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done, err := s.repo.UpdateOrderStatus(ctx, tx, order.ID,
			orderdomain.OrderStatusProcessing, orderdomain.OrderStatusCompleted, s.clock.Now())
		if err != nil {
			return err
		}
		if !done {
			return orderdomain.ErrInvalidTransition
		}
		return s.fulfill.FinalizeItems(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	order.OrderStatus = orderdomain.OrderStatusCompleted

	if err := s.fulfill.CreateSubscriptions(ctx, order); err != nil {
		return nil, err
	}
	if err := s.mailer.OrderCompleted(ctx, order, fulfillment.CompletionInstructions(order)); err != nil {
		s.log.Warn("completed email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	return order, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*orderdomain.Order, error) {
	order, err := s.Get(ctx, id, "")
	if err != nil {
		return nil, err
	}

	cancelled, err := s.repo.CancelActive(ctx, s.db, id, s.clock.Now(), false)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, orderdomain.ErrInvalidTransition
	}
	order.OrderStatus = orderdomain.OrderStatusCancelled

	for _, item := range order.Items {
		if item.IsPreloadedAccount {
			continue
		}
		if err := s.catalog.ReleaseReservation(ctx, item.ProductID, item.Quantity); err != nil {
			s.log.Warn("release reservation failed", zap.Error(err),
				zap.Int64("product_id", int64(item.ProductID)))
		}
	}

	if order.GatewayOrderCode != nil && order.PaymentStatus == orderdomain.PaymentStatusPending {
		if err := s.gateway.CancelPaymentLink(ctx, *order.GatewayOrderCode, reason); err != nil {
			s.log.Warn("cancel payment link failed", zap.Error(err), zap.Int("code", order.Code))
		}
	}

	if reason == "" {
		reason = "đơn hàng đã bị hủy"
	}
	if err := s.mailer.OrderCancelled(ctx, order, reason); err != nil {
		s.log.Warn("cancelled email failed", zap.Error(err), zap.Int("code", order.Code))
	}
	return order, nil
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, from, to orderdomain.OrderStatus) (*orderdomain.Order, error) {
	moved, err := s.repo.UpdateOrderStatus(ctx, s.db, id, from, to, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !moved {
		order, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, orderdomain.ErrInvalidTransition
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}
