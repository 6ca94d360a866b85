package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"github.com/KeyT9999/keyt-shop-backend/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:            s.genID.Generate(),
		OrderID:       req.OrderID,
		OrderItemID:   req.OrderItemID,
		ProductID:     req.ProductID,
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		ServiceName:   req.ServiceName,
		Account:       req.Account,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		Status:        subscriptiondomain.SubscriptionStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.repo.Insert(ctx, s.db, sub)
	if err == nil {
		return sub, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	// The unique index on order_item_id absorbed a replay.
	existing, ferr := s.repo.FindByOrderItemID(ctx, s.db, req.OrderItemID)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, err
	}
	s.log.Debug("subscription already exists for item",
		zap.Int64("order_item_id", int64(req.OrderItemID)),
	)
	return existing, nil
}

func (s *Service) ListByEmail(ctx context.Context, email string) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListByEmail(ctx, s.db, strings.ToLower(strings.TrimSpace(email)))
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func (s *Service) ExpiringTomorrow(ctx context.Context, now time.Time) ([]subscriptiondomain.Subscription, error) {
	from, to := dayBounds(now.UTC().AddDate(0, 0, 1))
	return s.repo.ListExpiringBetween(ctx, s.db, from, to, true)
}

func (s *Service) ExpiringToday(ctx context.Context, now time.Time) ([]subscriptiondomain.Subscription, error) {
	from, to := dayBounds(now.UTC())
	return s.repo.ListExpiringBetween(ctx, s.db, from, to, false)
}

func (s *Service) MarkNotified(ctx context.Context, id snowflake.ID) (bool, error) {
	return s.repo.MarkPreExpiryNotified(ctx, s.db, id, s.clock.Now())
}

func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpireOverdue(ctx, s.db, now)
}
