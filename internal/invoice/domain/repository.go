package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindBySubscriptionPeriod(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, periodStart time.Time) (*Invoice, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Invoice, error)
	// Insert reports false when a row with the same subscription and period
	// start already exists.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	InsertLines(ctx context.Context, db *gorm.DB, lines []InvoiceLine) error
	ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status InvoiceStatus, at time.Time) error
	UpdatePaidAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, paid decimal.Decimal, at time.Time) error
	CountPayments(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	NextSequence(ctx context.Context, db *gorm.DB) (int64, error)
}
