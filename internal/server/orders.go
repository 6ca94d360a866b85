package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
)

type orderItemResponse struct {
	ID                     string         `json:"id"`
	ProductID              string         `json:"product_id"`
	ProductName            string         `json:"product_name"`
	Quantity               int            `json:"quantity"`
	UnitPrice              int64          `json:"unit_price"`
	IsPreloadedAccount     bool           `json:"is_preloaded_account"`
	BillingCycle           string         `json:"billing_cycle,omitempty"`
	CompletionInstructions string         `json:"completion_instructions,omitempty"`
	DeliveredAccount       *string        `json:"delivered_account,omitempty"`
	RequiredFieldsData     map[string]any `json:"required_fields_data,omitempty"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Code          int    `json:"code"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	Note          string `json:"note,omitempty"`

	OrderStatus   orderdomain.OrderStatus   `json:"order_status"`
	PaymentStatus orderdomain.PaymentStatus `json:"payment_status"`

	TotalAmount   int64  `json:"total_amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method,omitempty"`

	GatewayOrderCode *int64  `json:"gateway_order_code,omitempty"`
	CheckoutURL      *string `json:"checkout_url,omitempty"`
	QRCode           *string `json:"qr_code,omitempty"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Items []orderItemResponse `json:"items"`
}

func toOrderResponse(order *orderdomain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:                     item.ID.String(),
			ProductID:              item.ProductID.String(),
			ProductName:            item.ProductName,
			Quantity:               item.Quantity,
			UnitPrice:              item.UnitPrice,
			IsPreloadedAccount:     item.IsPreloadedAccount,
			BillingCycle:           item.BillingCycle,
			CompletionInstructions: item.CompletionInstructions,
			DeliveredAccount:       item.DeliveredAccount,
			RequiredFieldsData:     item.RequiredFieldsData,
		})
	}
	return orderResponse{
		ID:               order.ID.String(),
		Code:             order.Code,
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		CustomerPhone:    order.CustomerPhone,
		Note:             order.Note,
		OrderStatus:      order.OrderStatus,
		PaymentStatus:    order.PaymentStatus,
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		PaymentMethod:    order.PaymentMethod,
		GatewayOrderCode: order.GatewayOrderCode,
		CheckoutURL:      order.CheckoutURL,
		QRCode:           order.QRCode,
		PaidAt:           order.PaidAt,
		CompletedAt:      order.CompletedAt,
		CancelledAt:      order.CancelledAt,
		CreatedAt:        order.CreatedAt,
		Items:            items,
	}
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": toOrderResponse(order)})
}

func (s *Server) GetOrder(c *gin.Context) {
	id, err := parseOrderID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id, ownerEmail(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": toOrderResponse(order)})
}

func (s *Server) ListSubscriptionsByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		AbortWithError(c, newValidationError("email", "invalid_customer_email", "email is required"))
		return
	}

	subs, err := s.subscriptionSvc.ListByEmail(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionResponse(&subs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

type subscriptionResponse struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	ServiceName   string    `json:"service_name"`
	CustomerEmail string    `json:"customer_email"`
	Account       *string   `json:"account,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Status        string    `json:"status"`
}

func toSubscriptionResponse(sub *subscriptiondomain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:            sub.ID.String(),
		OrderID:       sub.OrderID.String(),
		ServiceName:   sub.ServiceName,
		CustomerEmail: sub.CustomerEmail,
		Account:       sub.Account,
		StartAt:       sub.StartAt,
		EndAt:         sub.EndAt,
		Status:        string(sub.Status),
	}
}

func parseOrderID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return 0, orderdomain.ErrOrderNotFound
	}
	return id, nil
}

// ownerEmail is the caller's claimed identity for owner checks. Empty
// means no restriction, which only admin routes should rely on.
func ownerEmail(c *gin.Context) string {
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		return email
	}
	return strings.TrimSpace(c.GetHeader("X-Customer-Email"))
}
