// Package domain contains the catalog records billing reads but never
// changes: plans, variants, discounts, tax rates and users.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/billingcore/internal/apperror"
	"github.com/smallbiznis/billingcore/internal/permission"
	"github.com/smallbiznis/billingcore/internal/pricing"
)

type BillingPeriod string

const (
	BillingPeriodDaily   BillingPeriod = "DAILY"
	BillingPeriodWeekly  BillingPeriod = "WEEKLY"
	BillingPeriodMonthly BillingPeriod = "MONTHLY"
	BillingPeriodYearly  BillingPeriod = "YEARLY"
)

type RecurringPlan struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	BillingPeriod BillingPeriod `gorm:"type:text;not null" json:"billing_period"`
	IntervalCount int           `gorm:"not null;default:1" json:"interval_count"`
	Active        bool          `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
}

func (RecurringPlan) TableName() string { return "recurring_plans" }

// NextBillingDate advances base by one plan period. Months and years use
// calendar arithmetic, so Jan 31 plus one month normalises into March.
func (p RecurringPlan) NextBillingDate(base time.Time) (time.Time, error) {
	n := p.IntervalCount
	if n < 1 {
		return time.Time{}, apperror.Validation("plan %s has invalid interval count %d", p.ID, n)
	}
	switch p.BillingPeriod {
	case BillingPeriodDaily:
		return base.AddDate(0, 0, n), nil
	case BillingPeriodWeekly:
		return base.AddDate(0, 0, 7*n), nil
	case BillingPeriodMonthly:
		return base.AddDate(0, n, 0), nil
	case BillingPeriodYearly:
		return base.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, apperror.Validation("plan %s has unknown billing period %q", p.ID, p.BillingPeriod)
	}
}

type ProductVariant struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProductName string          `gorm:"type:text;not null" json:"product_name"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (ProductVariant) TableName() string { return "product_variants" }

// DisplayName is used as the invoice line description.
func (v ProductVariant) DisplayName() string {
	if v.Name == "" {
		return v.ProductName
	}
	if v.ProductName == "" {
		return v.Name
	}
	return v.ProductName + " - " + v.Name
}

type Discount struct {
	ID        snowflake.ID         `gorm:"primaryKey" json:"id"`
	Name      string               `gorm:"type:text;not null" json:"name"`
	Type      pricing.DiscountType `gorm:"type:text;not null" json:"type"`
	Value     decimal.Decimal      `gorm:"type:numeric(14,2);not null" json:"value"`
	CreatedAt time.Time            `gorm:"not null" json:"created_at"`
}

func (Discount) TableName() string { return "discounts" }

func (d Discount) Pricing() *pricing.Discount {
	return &pricing.Discount{Type: d.Type, Value: d.Value}
}

type TaxRate struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	Percent   decimal.Decimal `gorm:"type:numeric(7,4);not null" json:"percent"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

type User struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	Email     string          `gorm:"type:text;not null;uniqueIndex" json:"email"`
	Role      permission.Role `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (User) TableName() string { return "users" }
