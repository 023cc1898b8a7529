package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads catalog records on the caller's transaction. Each Find
// returns apperror.ErrNotFound when the record is missing.
type Repository interface {
	FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RecurringPlan, error)
	FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProductVariant, error)
	FindDiscount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Discount, error)
	FindTaxRate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TaxRate, error)
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	// Insert stores any catalog record. Catalog CRUD lives elsewhere; this
	// exists for seeding.
	Insert(ctx context.Context, db *gorm.DB, record any) error
}
