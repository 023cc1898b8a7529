package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	auditrepo "github.com/smallbiznis/billingcore/internal/audit/repository"
	auditservice "github.com/smallbiznis/billingcore/internal/audit/service"
	catalogdomain "github.com/smallbiznis/billingcore/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/billingcore/internal/catalog/repository"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	invoicerepo "github.com/smallbiznis/billingcore/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/billingcore/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/billingcore/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/billingcore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/billingcore/internal/payment/service"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/billingcore/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/billingcore/internal/subscription/service"
)

// Stack wires every billing service against one sqlite database.
type Stack struct {
	DB      *gorm.DB
	Node    *snowflake.Node
	Clock   *clock.FakeClock
	Catalog Catalog
	Billing *config.BillingConfigHolder

	CatalogRepo      catalogdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Audit            auditdomain.Service
	Subscriptions    subscriptiondomain.Service
	Invoices         *invoiceservice.Service
	Payments         paymentdomain.Service
}

// StackStart is the fake clock's initial reading.
var StackStart = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

func NewStack(t testing.TB) *Stack {
	t.Helper()

	db := NewDB(t)
	node := NewNode(t)
	clk := clock.NewFakeClock(StackStart)
	log := zap.NewNop()
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	catalogRepository := catalogrepo.Provide()
	subscriptionRepository := subscriptionrepo.Provide()
	invoiceRepository := invoicerepo.Provide()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        subscriptionRepository,
		CatalogRepo: catalogRepository,
		AuditSvc:    auditSvc,
		Billing:     billing,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Repo:             invoiceRepository,
		SubscriptionRepo: subscriptionRepository,
		CatalogRepo:      catalogRepository,
		AuditSvc:         auditSvc,
		Billing:          billing,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoiceRepository,
		Settlement:  invoiceSvc,
		AuditSvc:    auditSvc,
	})

	return &Stack{
		DB:      db,
		Node:    node,
		Clock:   clk,
		Catalog: SeedCatalog(t, db, node),
		Billing: billing,

		CatalogRepo:      catalogRepository,
		SubscriptionRepo: subscriptionRepository,
		Audit:            auditSvc,
		Subscriptions:    subscriptionSvc,
		Invoices:         invoiceSvc,
		Payments:         paymentSvc,
	}
}

// DraftWithLine creates a monthly draft subscription holding one line of
// quantity 2 at 50.00 taxed at 18%.
func (s *Stack) DraftWithLine(t testing.TB) *subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()

	sub, err := s.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: s.Catalog.Customer.ID,
		PlanID: s.Catalog.Monthly.ID,
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	taxID := s.Catalog.Tax18.ID
	sub, err = s.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      s.Catalog.Variant.ID,
		Quantity:       Dec("2"),
		UnitPrice:      Dec("50.00"),
		TaxRateID:      &taxID,
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	return sub
}

// ActiveWithLine returns DraftWithLine confirmed and activated.
func (s *Stack) ActiveWithLine(t testing.TB) *subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()

	sub := s.DraftWithLine(t)
	if _, err := s.Subscriptions.ActionConfirm(ctx, sub.ID, nil); err != nil {
		t.Fatalf("confirm subscription: %v", err)
	}
	sub, err := s.Subscriptions.ActionActivate(ctx, sub.ID)
	if err != nil {
		t.Fatalf("activate subscription: %v", err)
	}
	return sub
}

// AuditActions lists the audit actions recorded for one entity, oldest
// first.
func (s *Stack) AuditActions(t testing.TB, entityType string, entityID snowflake.ID) []auditdomain.Action {
	t.Helper()
	var actions []auditdomain.Action
	err := s.DB.Model(&auditdomain.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id asc").
		Pluck("action", &actions).Error
	if err != nil {
		t.Fatalf("load audit actions: %v", err)
	}
	return actions
}
