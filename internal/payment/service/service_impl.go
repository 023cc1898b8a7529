package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/apperror"
	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billingcore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/billingcore/internal/payment/domain"
	"github.com/smallbiznis/billingcore/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Settlement  invoicedomain.Settlement
	AuditSvc    auditdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	settlement  invoicedomain.Settlement
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		settlement:  p.Settlement,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

// RecordPayment stores a payment and raises the invoice's paid amount in
// one transaction. The invoice row is re-read under lock so concurrent
// payments can never push paid_amount past the total.
func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (*paymentdomain.RecordPaymentResponse, error) {
	// the stored two-decimal amount is what must be positive
	amount := pricing.Round2(req.Amount)
	if !amount.IsPositive() {
		s.obsMetrics.RecordPaymentRejected(ctx, "non_positive_amount")
		return nil, apperror.BusinessRule("payment amount must be at least 0.01, got %s", req.Amount.String())
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, apperror.Validation("payment_method is required")
	}
	if req.InvoiceID == 0 {
		return nil, apperror.Validation("invoice_id is required")
	}

	var resp *paymentdomain.RecordPaymentResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice: %w", err)
		}
		if invoice == nil {
			return apperror.NotFound(auditdomain.EntityInvoice, req.InvoiceID)
		}

		switch invoice.Status {
		case invoicedomain.InvoiceStatusConfirmed, invoicedomain.InvoiceStatusPaid:
		default:
			s.obsMetrics.RecordPaymentRejected(ctx, "invoice_status")
			return apperror.BusinessRule("invoice %s is %s and cannot accept payments", invoice.Number, invoice.Status)
		}

		recorded, err := s.repo.SumByInvoice(ctx, tx, invoice.ID)
		if err != nil {
			return fmt.Errorf("sum invoice payments: %w", err)
		}
		if !pricing.Round2(recorded).Equal(pricing.Round2(invoice.PaidAmount)) {
			s.obsMetrics.RecordPaymentRejected(ctx, "ledger_mismatch")
			return apperror.Conflict("invoice %s paid amount %s does not match recorded payments %s",
				invoice.Number, invoice.PaidAmount.StringFixed(2), recorded.StringFixed(2))
		}

		newPaid := pricing.Round2(invoice.PaidAmount.Add(amount))
		if newPaid.GreaterThan(invoice.Total) {
			s.obsMetrics.RecordPaymentRejected(ctx, "overpayment")
			return apperror.BusinessRule("payment of %s would exceed invoice total: %s paid of %s",
				amount.StringFixed(2), invoice.PaidAmount.StringFixed(2), invoice.Total.StringFixed(2))
		}

		now := s.clock.Now()
		paymentDate := now
		if req.PaymentDate != nil {
			paymentDate = req.PaymentDate.UTC()
		}
		payment := paymentdomain.Payment{
			ID:            s.genID.Generate(),
			InvoiceID:     invoice.ID,
			Amount:        amount,
			PaymentMethod: method,
			Reference:     req.Reference,
			Notes:         req.Notes,
			PaymentDate:   paymentDate,
			CreatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := s.invoiceRepo.UpdatePaidAmount(ctx, tx, invoice.ID, newPaid, now); err != nil {
			return fmt.Errorf("update invoice paid amount: %w", err)
		}
		invoice.PaidAmount = newPaid
		invoice.UpdatedAt = now

		if pricing.IsFullyPaid(invoice.Total, newPaid) && invoice.Status == invoicedomain.InvoiceStatusConfirmed {
			if err := s.settlement.MarkPaid(ctx, tx, invoice); err != nil {
				return err
			}
		}

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: auditdomain.EntityPayment,
			EntityID:   payment.ID,
			Action:     auditdomain.ActionPaymentRecorded,
			New: map[string]any{
				"payment_id":  payment.ID.String(),
				"invoice_id":  invoice.ID.String(),
				"amount":      amount.StringFixed(2),
				"method":      method,
				"reference":   payment.Reference,
				"paid_amount": newPaid.StringFixed(2),
			},
		}); err != nil {
			return err
		}

		resp = &paymentdomain.RecordPaymentResponse{Payment: payment, Invoice: *invoice}
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Debug("payment not recorded",
			zap.String("invoice_id", req.InvoiceID.String()),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return nil, err
	}

	amountValue, _ := amount.Float64()
	s.obsMetrics.RecordPayment(ctx, method, amountValue)
	logger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("payment_id", resp.Payment.ID.String()),
		zap.String("invoice_id", resp.Invoice.ID.String()),
		zap.String("invoice_status", string(resp.Invoice.Status)),
	)
	return resp, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, apperror.NotFound(auditdomain.EntityInvoice, invoiceID)
	}
	payments, err := s.repo.ListByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []paymentdomain.Payment{}
	}
	return payments, nil
}
