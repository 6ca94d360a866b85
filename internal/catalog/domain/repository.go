package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertProduct(ctx context.Context, db *gorm.DB, product *Product) error
	FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	ListProducts(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Product, error)

	InsertAccounts(ctx context.Context, db *gorm.DB, accounts []PreloadedAccount) error
	CountUnusedAccounts(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error)
	FindFirstUnusedAccount(ctx context.Context, db *gorm.DB, productID snowflake.ID) (*PreloadedAccount, error)
	// MarkAccountUsed flips one pool row from unused to used. It returns
	// false when another writer consumed the row first.
	MarkAccountUsed(ctx context.Context, db *gorm.DB, accountID, orderID snowflake.ID, at time.Time) (bool, error)
	// AllocateAccount consumes one unused credential and mirrors the take
	// into the stock counter. The caller owns the transaction, so a rolled
	// back caller releases the credential too. Returns ErrPoolExhausted
	// when the pool is empty.
	AllocateAccount(ctx context.Context, db *gorm.DB, productID, orderID snowflake.ID, at time.Time) (string, error)

	// ReserveStock adds quantity to the product's reserved counter when
	// enough unreserved stock remains. False means insufficient stock.
	ReserveStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, quantity int) error
	// DeductStock decrements stock and consumes the matching reservation.
	// False means stock would have gone negative.
	DeductStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, quantity int) (bool, error)
}
