package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
)

type RecordPaymentRequest struct {
	InvoiceID     snowflake.ID
	Amount        decimal.Decimal
	PaymentMethod string
	Reference     *string
	Notes         *string
	// PaymentDate defaults to now.
	PaymentDate *time.Time
}

type RecordPaymentResponse struct {
	Payment Payment               `json:"payment"`
	Invoice invoicedomain.Invoice `json:"invoice"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResponse, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}
