// Package domain contains persistence models for subscriptions and their lines.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusDraft     SubscriptionStatus = "DRAFT"
	SubscriptionStatusQuotation SubscriptionStatus = "QUOTATION"
	SubscriptionStatusConfirmed SubscriptionStatus = "CONFIRMED"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusClosed    SubscriptionStatus = "CLOSED"
)

// Subscription captures a customer's recurring billing agreement.
type Subscription struct {
	ID              snowflake.ID       `gorm:"primaryKey" json:"id"`
	Number          string             `gorm:"type:text;not null;uniqueIndex" json:"number"`
	Sequence        int64              `gorm:"not null" json:"-"`
	UserID          snowflake.ID       `gorm:"not null;index" json:"user_id"`
	PlanID          snowflake.ID       `gorm:"not null;index" json:"plan_id"`
	Status          SubscriptionStatus `gorm:"type:text;not null;index" json:"status"`
	SalespersonID   *snowflake.ID      `json:"salesperson_id,omitempty"`
	StartDate       *time.Time         `json:"start_date,omitempty"`
	EndDate         *time.Time         `json:"end_date,omitempty"`
	OrderDate       *time.Time         `json:"order_date,omitempty"`
	ExpirationDate  *time.Time         `json:"expiration_date,omitempty"`
	NextBillingDate *time.Time         `json:"next_billing_date,omitempty"`
	PaymentTermDays int                `gorm:"not null;default:0" json:"payment_term_days"`
	PaymentMethod   *string            `gorm:"type:text" json:"payment_method,omitempty"`
	PaymentDone     bool               `gorm:"not null;default:false" json:"payment_done"`
	Notes           *string            `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"not null" json:"updated_at"`

	Lines []SubscriptionLine `gorm:"-" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionLine is one priced variant on a subscription.
type SubscriptionLine struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID    `gorm:"not null;index" json:"subscription_id"`
	Position       int             `gorm:"not null" json:"position"`
	VariantID      snowflake.ID    `gorm:"not null" json:"variant_id"`
	Quantity       decimal.Decimal `gorm:"type:numeric(14,2);not null;check:chk_subscription_lines_quantity,quantity > 0" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:numeric(14,2);not null;check:chk_subscription_lines_unit_price,unit_price >= 0" json:"unit_price"`
	DiscountID     *snowflake.ID   `json:"discount_id,omitempty"`
	TaxRateID      *snowflake.ID   `json:"tax_rate_id,omitempty"`
	Notes          *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (SubscriptionLine) TableName() string { return "subscription_lines" }
