package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	OrderID       snowflake.ID
	OrderItemID   snowflake.ID
	ProductID     snowflake.ID
	CustomerName  string
	CustomerEmail string
	ServiceName   string
	Account       *string
	StartAt       time.Time
	EndAt         time.Time
}

type Service interface {
	// Create inserts the subscription for an order item. A duplicate
	// insert for the same item is a no-op returning the existing row.
	Create(ctx context.Context, req CreateRequest) (*Subscription, error)
	ListByEmail(ctx context.Context, email string) ([]Subscription, error)
	ExpiringTomorrow(ctx context.Context, now time.Time) ([]Subscription, error)
	ExpiringToday(ctx context.Context, now time.Time) ([]Subscription, error)
	MarkNotified(ctx context.Context, id snowflake.ID) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}
