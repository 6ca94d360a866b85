package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrProductNotFound   = errors.New("product_not_found")
	ErrProductInactive   = errors.New("product_inactive")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrPoolExhausted     = errors.New("preloaded_pool_exhausted")
)

type CreateProductRequest struct {
	Name                   string `json:"name"`
	Description            string `json:"description"`
	Price                  int64  `json:"price"`
	Currency               string `json:"currency"`
	BillingCycle           string `json:"billing_cycle"`
	Stock                  int    `json:"stock"`
	LowStockThreshold      int    `json:"low_stock_threshold"`
	IsPreloadedAccount     bool   `json:"is_preloaded_account"`
	CompletionInstructions string `json:"completion_instructions"`
	RequiredFields         string `json:"required_fields"`
}

type AddAccountsRequest struct {
	ProductID string   `json:"product_id"`
	Accounts  []string `json:"accounts"`
}

type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	AddAccounts(ctx context.Context, req AddAccountsRequest) (int, error)

	// CheckAvailability gates order creation. For preloaded-account
	// products it requires enough unused credentials; for plain products
	// it reserves quantity against stock.
	CheckAvailability(ctx context.Context, productID snowflake.ID, quantity int) error
	ReleaseReservation(ctx context.Context, productID snowflake.ID, quantity int) error
	DeductStock(ctx context.Context, productID snowflake.ID, quantity int) error

	// AllocateAccount atomically takes one unused credential from the
	// product's pool and mirrors the take into the stock counter.
	AllocateAccount(ctx context.Context, productID, orderID snowflake.ID) (string, error)
	UnusedAccounts(ctx context.Context, productID snowflake.ID) (int64, error)
}
