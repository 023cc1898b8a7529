package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/billingcore/internal/apperror"
	catalogdomain "github.com/smallbiznis/billingcore/internal/catalog/domain"
	"github.com/smallbiznis/billingcore/pkg/repository"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func findOne[T any](ctx context.Context, db *gorm.DB, entity string, id snowflake.ID) (*T, error) {
	record, err := repository.ProvideStore[T](db).FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", entity, err)
	}
	if record == nil {
		return nil, apperror.NotFound(entity, id)
	}
	return record, nil
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.RecurringPlan, error) {
	return findOne[catalogdomain.RecurringPlan](ctx, db, "recurring_plan", id)
}

func (r *repo) FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.ProductVariant, error) {
	return findOne[catalogdomain.ProductVariant](ctx, db, "product_variant", id)
}

func (r *repo) FindDiscount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Discount, error) {
	return findOne[catalogdomain.Discount](ctx, db, "discount", id)
}

func (r *repo) FindTaxRate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.TaxRate, error) {
	return findOne[catalogdomain.TaxRate](ctx, db, "tax_rate", id)
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.User, error) {
	return findOne[catalogdomain.User](ctx, db, "user", id)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record any) error {
	return db.WithContext(ctx).Create(record).Error
}
