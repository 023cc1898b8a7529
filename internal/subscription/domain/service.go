package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	UserID          snowflake.ID
	PlanID          snowflake.ID
	SalespersonID   *snowflake.ID
	StartDate       *time.Time
	ExpirationDate  *time.Time
	PaymentTermDays int
	PaymentMethod   *string
	Notes           *string
}

// UpdateSubscriptionRequest is a partial patch; nil fields are left untouched.
type UpdateSubscriptionRequest struct {
	PlanID          *snowflake.ID
	SalespersonID   *snowflake.ID
	StartDate       *time.Time
	ExpirationDate  *time.Time
	PaymentTermDays *int
	PaymentMethod   *string
	PaymentDone     *bool
	Notes           *string
}

type AddLineRequest struct {
	SubscriptionID snowflake.ID
	VariantID      snowflake.ID
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	DiscountID     *snowflake.ID
	TaxRateID      *snowflake.ID
	Notes          *string
}

type ListSubscriptionRequest struct {
	Status    SubscriptionStatus
	UserID    *snowflake.ID
	PageToken string
	PageSize  int32
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateSubscriptionRequest) (*Subscription, error)
	Delete(ctx context.Context, id snowflake.ID) error

	AddLine(ctx context.Context, req AddLineRequest) (*Subscription, error)
	RemoveLine(ctx context.Context, subscriptionID, lineID snowflake.ID) (*Subscription, error)

	ActionQuote(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ActionRevertToDraft(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ActionConfirm(ctx context.Context, id snowflake.ID, startDate *time.Time) (*Subscription, error)
	ActionActivate(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ActionClose(ctx context.Context, id snowflake.ID, endDate *time.Time) (*Subscription, error)
	ActionCancel(ctx context.Context, id snowflake.ID, endDate *time.Time) (*Subscription, error)
	ActionRenew(ctx context.Context, id snowflake.ID) (*Subscription, error)
}
