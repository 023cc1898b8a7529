// Package domain contains the append-only payment record.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Payment is money received against one invoice. Rows are never updated or
// deleted.
type Payment struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID     snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null;check:chk_payments_amount,amount > 0" json:"amount"`
	PaymentMethod string          `gorm:"type:text;not null" json:"payment_method"`
	Reference     *string         `gorm:"type:text" json:"reference,omitempty"`
	Notes         *string         `gorm:"type:text" json:"notes,omitempty"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
