package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) InsertProduct(ctx context.Context, db *gorm.DB, product *catalogdomain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Product, error) {
	var product catalogdomain.Product
	err := db.WithContext(ctx).First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repo) ListProducts(ctx context.Context, db *gorm.DB, activeOnly bool) ([]catalogdomain.Product, error) {
	var products []catalogdomain.Product
	q := db.WithContext(ctx).Order("created_at DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) InsertAccounts(ctx context.Context, db *gorm.DB, accounts []catalogdomain.PreloadedAccount) error {
	if len(accounts) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&accounts).Error
}

func (r *repo) CountUnusedAccounts(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&catalogdomain.PreloadedAccount{}).
		Where("product_id = ? AND used = ?", productID, false).
		Count(&count).Error
	return count, err
}

func (r *repo) FindFirstUnusedAccount(ctx context.Context, db *gorm.DB, productID snowflake.ID) (*catalogdomain.PreloadedAccount, error) {
	var account catalogdomain.PreloadedAccount
	err := db.WithContext(ctx).
		Where("product_id = ? AND used = ?", productID, false).
		Order("id").
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) MarkAccountUsed(ctx context.Context, db *gorm.DB, accountID, orderID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE preloaded_accounts
		 SET used = ?, used_at = ?, used_for_order = ?
		 WHERE id = ? AND used = ?`,
		true, at, orderID, accountID, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// A lost CAS means another writer consumed the candidate; the pool
// strictly shrinks, so the loop terminates.
func (r *repo) AllocateAccount(ctx context.Context, db *gorm.DB, productID, orderID snowflake.ID, at time.Time) (string, error) {
	for {
		candidate, err := r.FindFirstUnusedAccount(ctx, db, productID)
		if err != nil {
			return "", err
		}
		if candidate == nil {
			return "", catalogdomain.ErrPoolExhausted
		}

		taken, err := r.MarkAccountUsed(ctx, db, candidate.ID, orderID, at)
		if err != nil {
			return "", err
		}
		if !taken {
			continue
		}

		err = db.WithContext(ctx).Exec(
			`UPDATE products
			 SET stock = CASE WHEN stock > 0 THEN stock - 1 ELSE 0 END,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			productID,
		).Error
		if err != nil {
			return "", err
		}
		return candidate.Account, nil
	}
}

func (r *repo) ReserveStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, quantity int) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET reserved = reserved + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock - reserved >= ?`,
		quantity, productID, quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ReleaseStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, quantity int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET reserved = CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		quantity, quantity, productID,
	).Error
}

func (r *repo) DeductStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, quantity int) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock = stock - ?,
		     reserved = CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock >= ?`,
		quantity, quantity, quantity, productID, quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
