package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billingcore/internal/apperror"
	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/billingcore/internal/catalog/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/internal/observability/logger"
	"github.com/smallbiznis/billingcore/internal/observability/metrics"
	"github.com/smallbiznis/billingcore/internal/pricing"
	"github.com/smallbiznis/billingcore/internal/statemachine"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/billingcore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const entity = auditdomain.EntityInvoice

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID            *snowflake.Node
	clock            clock.Clock
	repo             invoicedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	catalogRepo      catalogdomain.Repository
	auditSvc         auditdomain.Service
	billing          *config.BillingConfigHolder
	metrics          *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             invoicedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	CatalogRepo      catalogdomain.Repository
	AuditSvc         auditdomain.Service
	Billing          *config.BillingConfigHolder
	Metrics          *metrics.Metrics `optional:"true"`
}

// Result exposes the service under both of its roles.
type Result struct {
	fx.Out

	Service    invoicedomain.Service
	Settlement invoicedomain.Settlement
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		catalogRepo:      p.CatalogRepo,
		auditSvc:         p.AuditSvc,
		billing:          p.Billing,
		metrics:          p.Metrics,
	}
}

func Provide(p ServiceParam) Result {
	svc := NewService(p)
	return Result{Service: svc, Settlement: svc}
}

type statusChange struct {
	Status invoicedomain.InvoiceStatus `json:"status"`
	Action statemachine.Action         `json:"action,omitempty"`
}

// GenerateForPeriod prices every subscription line and stores the result
// as a new invoice. When an invoice already exists for the period it is
// returned as is.
func (s *Service) GenerateForPeriod(ctx context.Context, subscriptionID snowflake.ID, periodStart time.Time) (*invoicedomain.Invoice, error) {
	if subscriptionID == 0 {
		return nil, apperror.Validation("subscription_id is required")
	}
	if periodStart.IsZero() {
		return nil, apperror.Validation("period_start is required")
	}
	periodStart = periodStart.UTC().Truncate(time.Microsecond)

	var (
		result *invoicedomain.Invoice
		reused bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySubscriptionPeriod(ctx, tx, subscriptionID, periodStart)
		if err != nil {
			return fmt.Errorf("find invoice for period: %w", err)
		}
		if existing != nil {
			if err := s.loadLines(ctx, tx, existing); err != nil {
				return err
			}
			result, reused = existing, true
			return nil
		}

		invoice, err := s.build(ctx, tx, subscriptionID, periodStart)
		if err != nil {
			return err
		}

		seq, err := s.repo.NextSequence(ctx, tx)
		if err != nil {
			return fmt.Errorf("next invoice sequence: %w", err)
		}
		invoice.Sequence = seq
		invoice.Number = fmt.Sprintf("%s-%06d", s.billing.Get().InvoiceNumberPrefix, seq)

		inserted, err := s.repo.Insert(ctx, tx, invoice)
		if err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return apperror.Conflict("invoice number %s is already taken, retry", invoice.Number)
			}
			return fmt.Errorf("insert invoice: %w", err)
		}
		if !inserted {
			return apperror.Conflict("invoice for subscription %s period %s was created concurrently, retry to load it",
				subscriptionID, periodStart.Format(time.RFC3339))
		}
		if err := s.repo.InsertLines(ctx, tx, invoice.Lines); err != nil {
			return fmt.Errorf("insert invoice lines: %w", err)
		}

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   invoice.ID,
			Action:     auditdomain.ActionCreated,
			New:        invoice,
		}); err != nil {
			return err
		}

		result = invoice
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.metrics.RecordInvoiceGenerated(ctx, "conflict")
		}
		return nil, err
	}

	if reused {
		s.metrics.RecordInvoiceGenerated(ctx, "reused")
		return result, nil
	}
	s.metrics.RecordInvoiceGenerated(ctx, "created")
	logger.WithContext(ctx, s.log).Info("invoice generated",
		zap.String("invoice_id", result.ID.String()),
		zap.String("number", result.Number),
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("total", result.Total.StringFixed(2)),
	)
	return result, nil
}

// build loads the subscription, its plan and lines and prices them with
// the discount and tax definitions current at generation time.
func (s *Service) build(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, periodStart time.Time) (*invoicedomain.Invoice, error) {
	subscription, err := s.subscriptionRepo.FindByID(ctx, tx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if subscription == nil {
		return nil, apperror.NotFound(auditdomain.EntitySubscription, subscriptionID)
	}
	switch subscription.Status {
	case subscriptiondomain.SubscriptionStatusDraft, subscriptiondomain.SubscriptionStatusQuotation:
		return nil, apperror.BusinessRule("subscription %s is %s and cannot be invoiced", subscription.Number, subscription.Status)
	}

	plan, err := s.catalogRepo.FindPlan(ctx, tx, subscription.PlanID)
	if err != nil {
		return nil, err
	}
	subscriptionLines, err := s.subscriptionRepo.ListLines(ctx, tx, subscription.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscription lines: %w", err)
	}
	if len(subscriptionLines) == 0 {
		return nil, apperror.BusinessRule("subscription %s has no lines to invoice", subscription.Number)
	}

	next, err := plan.NextBillingDate(periodStart)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	invoice := &invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Status:         invoicedomain.InvoiceStatusDraft,
		PeriodStart:    periodStart,
		PeriodEnd:      next.Add(-time.Second),
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, s.billing.Get().InvoiceDueDays),
		PaidAmount:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	amounts := make([]pricing.LineAmounts, 0, len(subscriptionLines))
	lines := make([]invoicedomain.InvoiceLine, 0, len(subscriptionLines))
	for i, sl := range subscriptionLines {
		line, lineAmounts, err := s.priceLine(ctx, tx, invoice, sl)
		if err != nil {
			return nil, err
		}
		line.Position = i + 1
		line.CreatedAt = now
		amounts = append(amounts, lineAmounts)
		lines = append(lines, line)
	}

	totals := pricing.CalculateTotals(amounts)
	invoice.Subtotal = totals.Subtotal
	invoice.DiscountAmount = totals.DiscountAmount
	invoice.TaxAmount = totals.TaxAmount
	invoice.Total = totals.Total
	invoice.Lines = lines
	return invoice, nil
}

func (s *Service) priceLine(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, sl subscriptiondomain.SubscriptionLine) (invoicedomain.InvoiceLine, pricing.LineAmounts, error) {
	variant, err := s.catalogRepo.FindVariant(ctx, tx, sl.VariantID)
	if err != nil {
		return invoicedomain.InvoiceLine{}, pricing.LineAmounts{}, err
	}

	input := pricing.LineInput{Quantity: sl.Quantity, UnitPrice: sl.UnitPrice}
	metadata := datatypes.JSONMap{"variant_id": variant.ID.String()}
	if sl.DiscountID != nil {
		discount, err := s.catalogRepo.FindDiscount(ctx, tx, *sl.DiscountID)
		if err != nil {
			return invoicedomain.InvoiceLine{}, pricing.LineAmounts{}, err
		}
		input.Discount = discount.Pricing()
		metadata["discount"] = map[string]any{
			"id":    discount.ID.String(),
			"name":  discount.Name,
			"type":  string(discount.Type),
			"value": discount.Value.String(),
		}
	}
	if sl.TaxRateID != nil {
		taxRate, err := s.catalogRepo.FindTaxRate(ctx, tx, *sl.TaxRateID)
		if err != nil {
			return invoicedomain.InvoiceLine{}, pricing.LineAmounts{}, err
		}
		percent := taxRate.Percent
		input.TaxRatePercent = &percent
		metadata["tax_rate"] = map[string]any{
			"id":      taxRate.ID.String(),
			"name":    taxRate.Name,
			"percent": taxRate.Percent.String(),
		}
	}

	amounts := pricing.CalculateLine(input)
	subscriptionLineID := sl.ID
	return invoicedomain.InvoiceLine{
		ID:                 s.genID.Generate(),
		InvoiceID:          invoice.ID,
		SubscriptionLineID: &subscriptionLineID,
		Description:        variant.DisplayName(),
		Quantity:           sl.Quantity,
		UnitPrice:          sl.UnitPrice,
		Subtotal:           amounts.Subtotal,
		DiscountAmount:     amounts.DiscountAmount,
		TaxAmount:          amounts.TaxAmount,
		LineTotal:          amounts.LineTotal,
		Metadata:           metadata,
	}, amounts, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, apperror.NotFound(entity, id)
	}
	if err := s.loadLines(ctx, s.db, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]invoicedomain.Invoice, error) {
	invoices, err := s.repo.ListBySubscription(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []invoicedomain.Invoice{}
	}
	return invoices, nil
}

func (s *Service) ActionConfirm(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, statemachine.ActionConfirm, nil)
}

func (s *Service) ActionCancel(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, statemachine.ActionCancel, nil)
}

// ActionRestore brings a canceled invoice back to draft. Invoices that
// already received money stay canceled.
func (s *Service) ActionRestore(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, statemachine.ActionRestore, func(invoice *invoicedomain.Invoice) error {
		if !invoice.PaidAmount.IsZero() {
			return apperror.BusinessRule("invoice %s has paid amount %s and cannot be restored", invoice.Number, invoice.PaidAmount.StringFixed(2))
		}
		return nil
	})
}

// MarkPaid settles a confirmed invoice on the caller's transaction. The
// caller owns the row lock and the audit entry for the payment.
func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	if tx == nil {
		return fmt.Errorf("mark invoice paid: transaction handle is required")
	}
	if invoice == nil {
		return apperror.Validation("invoice is required")
	}
	target := invoicedomain.InvoiceStatusPaid
	if !statemachine.CanTransitionInvoice(invoice.Status, target) {
		return apperror.InvalidTransition(entity, invoice.Status, target)
	}

	from := invoice.Status
	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, tx, invoice.ID, target, now); err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		EntityType: entity,
		EntityID:   invoice.ID,
		Action:     auditdomain.ActionStatusChange,
		Old:        statusChange{Status: from},
		New:        statusChange{Status: target, Action: statemachine.ActionPay},
	}); err != nil {
		return err
	}

	invoice.Status = target
	invoice.UpdatedAt = now
	return nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch invoice.Status {
		case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusConfirmed:
		default:
			return apperror.BusinessRule("invoice %s cannot be deleted in status %s", invoice.Number, invoice.Status)
		}
		payments, err := s.repo.CountPayments(ctx, tx, invoice.ID)
		if err != nil {
			return fmt.Errorf("count invoice payments: %w", err)
		}
		if payments > 0 {
			return apperror.BusinessRule("invoice %s has %d payments and cannot be deleted", invoice.Number, payments)
		}
		if err := s.loadLines(ctx, tx, invoice); err != nil {
			return err
		}

		if err := s.repo.Delete(ctx, tx, invoice.ID); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   invoice.ID,
			Action:     auditdomain.ActionDeleted,
			Old:        invoice,
		})
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("invoice deleted", zap.String("invoice_id", id.String()))
	return nil
}

func (s *Service) transition(
	ctx context.Context,
	id snowflake.ID,
	action statemachine.Action,
	guard func(invoice *invoicedomain.Invoice) error,
) (*invoicedomain.Invoice, error) {
	target, ok := statemachine.InvoiceTarget(action)
	if !ok {
		return nil, apperror.Validation("unknown invoice action %q", action)
	}

	var (
		result *invoicedomain.Invoice
		from   invoicedomain.InvoiceStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		from = invoice.Status
		if !statemachine.CanTransitionInvoice(from, target) {
			return apperror.InvalidTransition(entity, from, target)
		}
		if guard != nil {
			if err := guard(invoice); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, invoice.ID, target, now); err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   invoice.ID,
			Action:     auditdomain.ActionStatusChange,
			Old:        statusChange{Status: from},
			New:        statusChange{Status: target, Action: action},
		}); err != nil {
			return err
		}

		invoice.Status = target
		invoice.UpdatedAt = now
		if err := s.loadLines(ctx, tx, invoice); err != nil {
			return err
		}
		result = invoice
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Debug("invoice transition rejected",
			zap.String("invoice_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordInvoiceTransition(ctx, string(from), string(target))
	return result, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound(entity, id)
	}
	return invoice, nil
}

func (s *Service) loadLines(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	lines, err := s.repo.ListLines(ctx, db, invoice.ID)
	if err != nil {
		return fmt.Errorf("list invoice lines: %w", err)
	}
	if lines == nil {
		lines = []invoicedomain.InvoiceLine{}
	}
	invoice.Lines = lines
	return nil
}
