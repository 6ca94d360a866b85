package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  catalogdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  catalogdomain.Repository
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateProduct(ctx context.Context, req catalogdomain.CreateProductRequest) (*catalogdomain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, catalogdomain.ErrInvalidName
	}
	if req.Price <= 0 {
		return nil, catalogdomain.ErrInvalidPrice
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "VND"
	}

	now := s.clock.Now()
	product := &catalogdomain.Product{
		ID:                     s.genID.Generate(),
		Name:                   name,
		Description:            strings.TrimSpace(req.Description),
		Price:                  req.Price,
		Currency:               currency,
		BillingCycle:           strings.TrimSpace(req.BillingCycle),
		Stock:                  req.Stock,
		LowStockThreshold:      req.LowStockThreshold,
		IsPreloadedAccount:     req.IsPreloadedAccount,
		CompletionInstructions: strings.TrimSpace(req.CompletionInstructions),
		RequiredFields:         strings.TrimSpace(req.RequiredFields),
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.repo.InsertProduct(ctx, s.db, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (*catalogdomain.Product, error) {
	product, err := s.repo.FindProductByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, catalogdomain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]catalogdomain.Product, error) {
	return s.repo.ListProducts(ctx, s.db, activeOnly)
}

func (s *Service) AddAccounts(ctx context.Context, req catalogdomain.AddAccountsRequest) (int, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil {
		return 0, catalogdomain.ErrProductNotFound
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	accounts := make([]catalogdomain.PreloadedAccount, 0, len(req.Accounts))
	for _, raw := range req.Accounts {
		account := strings.TrimSpace(raw)
		if account == "" {
			continue
		}
		accounts = append(accounts, catalogdomain.PreloadedAccount{
			ID:        s.genID.Generate(),
			ProductID: product.ID,
			Account:   account,
			CreatedAt: now,
		})
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	// Imported credentials also raise the stock counter so availability
	// checks and the pool stay in sync.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertAccounts(ctx, tx, accounts); err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
			len(accounts), now, product.ID,
		).Error
	})
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}

func (s *Service) CheckAvailability(ctx context.Context, productID snowflake.ID, quantity int) error {
	if quantity <= 0 {
		return catalogdomain.ErrInvalidQuantity
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return catalogdomain.ErrProductInactive
	}

	if product.IsPreloadedAccount {
		unused, err := s.repo.CountUnusedAccounts(ctx, s.db, productID)
		if err != nil {
			return err
		}
		if unused < int64(quantity) {
			return catalogdomain.ErrInsufficientStock
		}
		return nil
	}

	ok, err := s.repo.ReserveStock(ctx, s.db, productID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return catalogdomain.ErrInsufficientStock
	}
	return nil
}

func (s *Service) ReleaseReservation(ctx context.Context, productID snowflake.ID, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	product, err := s.repo.FindProductByID(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if product == nil || product.IsPreloadedAccount {
		return nil
	}
	return s.repo.ReleaseStock(ctx, s.db, productID, quantity)
}

func (s *Service) DeductStock(ctx context.Context, productID snowflake.ID, quantity int) error {
	if quantity <= 0 {
		return catalogdomain.ErrInvalidQuantity
	}

	ok, err := s.repo.DeductStock(ctx, s.db, productID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return catalogdomain.ErrInsufficientStock
	}
	return nil
}

// AllocateAccount takes one credential from the pool in its own
// transaction. Callers that need the take tied to other writes use
// the repository method on their transaction instead.
func (s *Service) AllocateAccount(ctx context.Context, productID, orderID snowflake.ID) (string, error) {
	var account string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		got, err := s.repo.AllocateAccount(ctx, tx, productID, orderID, s.clock.Now())
		if err != nil {
			return err
		}
		account = got
		return nil
	})
	if err != nil {
		return "", err
	}
	return account, nil
}

func (s *Service) UnusedAccounts(ctx context.Context, productID snowflake.ID) (int64, error) {
	return s.repo.CountUnusedAccounts(ctx, s.db, productID)
}
