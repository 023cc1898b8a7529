package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// GenerateForPeriod is idempotent on (subscriptionID, periodStart). An
	// existing invoice is returned unchanged.
	GenerateForPeriod(ctx context.Context, subscriptionID snowflake.ID, periodStart time.Time) (*Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]Invoice, error)
	ActionConfirm(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ActionCancel(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ActionRestore(ctx context.Context, id snowflake.ID) (*Invoice, error)
	Delete(ctx context.Context, id snowflake.ID) error
}

// Settlement is the payment-side entry point into the invoice lifecycle. It
// runs on the caller's transaction.
type Settlement interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, invoice *Invoice) error
}
