// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusConfirmed InvoiceStatus = "CONFIRMED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCanceled  InvoiceStatus = "CANCELED"
)

// Invoice is the billed amount of one subscription period. A subscription
// has at most one invoice per period start.
type Invoice struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	Number         string          `gorm:"type:text;not null;uniqueIndex" json:"number"`
	Sequence       int64           `gorm:"not null" json:"-"`
	SubscriptionID snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoices_subscription_period,priority:1" json:"subscription_id"`
	UserID         snowflake.ID    `gorm:"not null;index" json:"user_id"`
	Status         InvoiceStatus   `gorm:"type:text;not null;index" json:"status"`
	PeriodStart    time.Time       `gorm:"not null;uniqueIndex:ux_invoices_subscription_period,priority:2" json:"period_start"`
	PeriodEnd      time.Time       `gorm:"not null" json:"period_end"`
	IssueDate      time.Time       `gorm:"not null" json:"issue_date"`
	DueDate        time.Time       `gorm:"not null" json:"due_date"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	Total          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null;check:chk_invoices_paid_amount,paid_amount <= total" json:"paid_amount"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`

	Lines []InvoiceLine `gorm:"-" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Balance is the amount still owed.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

// InvoiceLine is a priced snapshot of a subscription line. Pricing inputs
// (discount and tax definitions) are copied into Metadata so later catalog
// edits never change a generated invoice.
type InvoiceLine struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID          snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	Position           int               `gorm:"not null" json:"position"`
	SubscriptionLineID *snowflake.ID     `json:"subscription_line_id,omitempty"`
	Description        string            `gorm:"type:text;not null" json:"description"`
	Quantity           decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"quantity"`
	UnitPrice          decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Subtotal           decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	DiscountAmount     decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"discount_amount"`
	TaxAmount          decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	LineTotal          decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"line_total"`
	Metadata           datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt          time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }
