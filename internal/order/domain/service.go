package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrNotOwner             = errors.New("not_order_owner")
	ErrInvalidCustomerName  = errors.New("invalid_customer_name")
	ErrInvalidCustomerEmail = errors.New("invalid_customer_email")
	ErrEmptyItems           = errors.New("empty_items")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidTotal         = errors.New("invalid_total")
	ErrMissingRequiredField = errors.New("missing_required_field")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrOrderCodeExhausted   = errors.New("order_code_exhausted")
)

type CreateOrderItemRequest struct {
	ProductID          string         `json:"product_id"`
	Quantity           int            `json:"quantity"`
	RequiredFieldsData map[string]any `json:"required_fields_data,omitempty"`
}

type CreateOrderRequest struct {
	CustomerName  string                   `json:"customer_name"`
	CustomerEmail string                   `json:"customer_email"`
	CustomerPhone string                   `json:"customer_phone"`
	Note          string                   `json:"note"`
	TotalAmount   int64                    `json:"total_amount"`
	Items         []CreateOrderItemRequest `json:"items"`
}

// PaymentLink is what the client needs to pay through the gateway.
type PaymentLink struct {
	GatewayOrderCode int64  `json:"gateway_order_code"`
	PaymentLinkID    string `json:"payment_link_id"`
	CheckoutURL      string `json:"checkout_url"`
	QRCode           string `json:"qr_code"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	// Get enforces the owner restriction when ownerEmail is non-empty.
	Get(ctx context.Context, id snowflake.ID, ownerEmail string) (*Order, error)
	// GetByCode looks an order up by its short human-facing code.
	GetByCode(ctx context.Context, code int, ownerEmail string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)

	// CreatePaymentLink creates (or returns the existing) gateway
	// checkout link for a pending-payment order.
	CreatePaymentLink(ctx context.Context, id snowflake.ID, ownerEmail string) (*PaymentLink, error)

	// Operator transitions. Each one is a guarded single step and sends
	// its own customer notification.
	Confirm(ctx context.Context, id snowflake.ID) (*Order, error)
	StartProcessing(ctx context.Context, id snowflake.ID) (*Order, error)
	Complete(ctx context.Context, id snowflake.ID) (*Order, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*Order, error)
}
