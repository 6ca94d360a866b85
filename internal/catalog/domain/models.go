// Package domain contains persistence models for products and the
// preloaded credential pool.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a sellable digital good. Preloaded-account products are
// fulfilled from the credential pool; plain products track a stock
// counter that is decremented at fulfillment.
type Product struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	Name                   string       `gorm:"type:text;not null"`
	Description            string       `gorm:"type:text"`
	Price                  int64        `gorm:"not null"`
	Currency               string       `gorm:"type:text;not null;default:VND"`
	BillingCycle           string       `gorm:"type:text"`
	Stock                  int          `gorm:"not null;default:0"`
	Reserved               int          `gorm:"not null;default:0"`
	LowStockThreshold      int          `gorm:"not null;default:0"`
	IsPreloadedAccount     bool         `gorm:"not null;default:false"`
	CompletionInstructions string       `gorm:"type:text"`
	RequiredFields         string       `gorm:"type:text"`
	Active                 bool         `gorm:"not null;default:true"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// PreloadedAccount is one credential in a product's pool. A row is
// consumed at most once; Used flips exactly one time under a
// conditional update.
type PreloadedAccount struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	ProductID    snowflake.ID  `gorm:"not null;index"`
	Account      string        `gorm:"type:text;not null"`
	Used         bool          `gorm:"not null;default:false;index"`
	UsedAt       *time.Time    `gorm:""`
	UsedForOrder *snowflake.ID `gorm:""`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PreloadedAccount) TableName() string { return "preloaded_accounts" }
