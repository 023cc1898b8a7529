package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/billingcore/internal/apperror"
	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/billingcore/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"github.com/smallbiznis/billingcore/internal/testutil"
)

var january = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestGenerateForPeriodPricesAndNumbers(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", invoice.Number)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, sub.UserID, invoice.UserID)
	assert.True(t, invoice.PeriodStart.Equal(january))
	assert.True(t, invoice.PeriodEnd.Equal(time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC)))
	assert.True(t, invoice.IssueDate.Equal(testutil.StackStart))
	assert.True(t, invoice.DueDate.Equal(testutil.StackStart.AddDate(0, 0, 30)))

	assert.Equal(t, "100.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "0.00", invoice.DiscountAmount.StringFixed(2))
	assert.Equal(t, "18.00", invoice.TaxAmount.StringFixed(2))
	assert.Equal(t, "118.00", invoice.Total.StringFixed(2))
	assert.True(t, invoice.PaidAmount.IsZero())

	require.Len(t, invoice.Lines, 1)
	line := invoice.Lines[0]
	assert.Equal(t, "Hosting - Standard", line.Description)
	assert.Equal(t, 1, line.Position)
	require.NotNil(t, line.SubscriptionLineID)
	assert.Equal(t, sub.Lines[0].ID, *line.SubscriptionLineID)
	assert.Equal(t, "118.00", line.LineTotal.StringFixed(2))

	assert.Equal(t, []auditdomain.Action{auditdomain.ActionCreated},
		stack.AuditActions(t, auditdomain.EntityInvoice, invoice.ID))

	next, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "INV-000002", next.Number)
	assert.True(t, next.PeriodEnd.Equal(time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)))
}

func TestGenerateForPeriodAppliesDiscounts(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	percentID := stack.Catalog.TenPercent.ID
	taxID := stack.Catalog.Tax18.ID
	_, err := stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Addon.ID,
		Quantity:       testutil.Dec("3"),
		UnitPrice:      testutil.Dec("9.99"),
		DiscountID:     &percentID,
		TaxRateID:      &taxID,
	})
	require.NoError(t, err)

	fixedID := stack.Catalog.FiveOff.ID
	_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Addon.ID,
		Quantity:       testutil.Dec("1"),
		UnitPrice:      testutil.Dec("3.00"),
		DiscountID:     &fixedID,
	})
	require.NoError(t, err)

	_, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.NoError(t, err)

	invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)
	require.Len(t, invoice.Lines, 3)

	// 3 x 9.99 = 29.97, 10% off = 3.00, 18% of 26.97 = 4.85
	assert.Equal(t, "31.82", invoice.Lines[1].LineTotal.StringFixed(2))
	// a fixed discount larger than the line stops at the line subtotal
	assert.Equal(t, "3.00", invoice.Lines[2].DiscountAmount.StringFixed(2))
	assert.Equal(t, "0.00", invoice.Lines[2].LineTotal.StringFixed(2))

	assert.Equal(t, "132.97", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "6.00", invoice.DiscountAmount.StringFixed(2))
	assert.Equal(t, "22.85", invoice.TaxAmount.StringFixed(2))
	assert.Equal(t, "149.82", invoice.Total.StringFixed(2))
}

func TestGenerateForPeriodIsIdempotent(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	first, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)

	stack.Clock.Advance(time.Hour)
	second, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january.In(time.FixedZone("UTC+7", 7*3600)))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)
	assert.True(t, first.IssueDate.Equal(second.IssueDate))
	assert.Len(t, second.Lines, 1)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	require.JSONEq(t, string(firstJSON), string(secondJSON))
	assert.Equal(t, int64(1), testutil.CountRows(t, stack.DB, "invoices"))
	assert.Len(t, stack.AuditActions(t, auditdomain.EntityInvoice, first.ID), 1)
}

func TestGenerateForPeriodConcurrentCallsCreateOneInvoice(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	const callers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
			if err != nil {
				assert.ErrorIs(t, err, apperror.ErrConflict)
				return
			}
			mu.Lock()
			ids[invoice.ID.String()]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, int64(1), testutil.CountRows(t, stack.DB, "invoices"))
	assert.Equal(t, int64(1), testutil.CountRows(t, stack.DB, "invoice_lines"))
}

func TestGeneratedInvoiceIgnoresLaterCatalogChanges(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)

	require.NoError(t, stack.DB.Exec(`UPDATE tax_rates SET percent = ? WHERE id = ?`, "25", stack.Catalog.Tax18.ID).Error)
	require.NoError(t, stack.DB.Exec(`UPDATE product_variants SET name = ? WHERE id = ?`, "Premium", stack.Catalog.Variant.ID).Error)

	reloaded, err := stack.Invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "118.00", reloaded.Total.StringFixed(2))
	require.Len(t, reloaded.Lines, 1)
	assert.Equal(t, "Hosting - Standard", reloaded.Lines[0].Description)
	assert.Equal(t, "18.00", reloaded.Lines[0].TaxAmount.StringFixed(2))

	taxSnapshot, ok := reloaded.Lines[0].Metadata["tax_rate"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "18", taxSnapshot["percent"])

	later, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "125.00", later.Total.StringFixed(2))
	assert.Equal(t, "Hosting - Premium", later.Lines[0].Description)
}

func TestGenerateForPeriodRejectsUnbillableSubscriptions(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	_, err := stack.Invoices.GenerateForPeriod(ctx, stack.Node.Generate(), january)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	draft := stack.DraftWithLine(t)
	_, err = stack.Invoices.GenerateForPeriod(ctx, draft.ID, january)
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)

	_, err = stack.Invoices.GenerateForPeriod(ctx, draft.ID, time.Time{})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	empty := &subscriptiondomain.Subscription{
		ID:        stack.Node.Generate(),
		Number:    "SUB-LEGACY",
		UserID:    stack.Catalog.Customer.ID,
		PlanID:    stack.Catalog.Monthly.ID,
		Status:    subscriptiondomain.SubscriptionStatusActive,
		CreatedAt: testutil.StackStart,
		UpdatedAt: testutil.StackStart,
	}
	require.NoError(t, stack.SubscriptionRepo.Insert(ctx, stack.DB, empty))
	_, err = stack.Invoices.GenerateForPeriod(ctx, empty.ID, january)
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)

	assert.Zero(t, testutil.CountRows(t, stack.DB, "invoices"))
}

func TestInvoiceTransitions(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)

	_, err = stack.Invoices.ActionRestore(ctx, invoice.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	invoice, err = stack.Invoices.ActionConfirm(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusConfirmed, invoice.Status)

	_, err = stack.Invoices.ActionConfirm(ctx, invoice.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	invoice, err = stack.Invoices.ActionCancel(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCanceled, invoice.Status)

	invoice, err = stack.Invoices.ActionRestore(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)

	assert.Equal(t, []auditdomain.Action{
		auditdomain.ActionCreated,
		auditdomain.ActionStatusChange,
		auditdomain.ActionStatusChange,
		auditdomain.ActionStatusChange,
	}, stack.AuditActions(t, auditdomain.EntityInvoice, invoice.ID))

	_, err = stack.Invoices.ActionCancel(ctx, stack.Node.Generate())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRestoreRequiresNoPayments(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)
	_, err = stack.Invoices.ActionConfirm(ctx, invoice.ID)
	require.NoError(t, err)
	_, err = stack.Payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:     invoice.ID,
		Amount:        testutil.Dec("18.00"),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	_, err = stack.Invoices.ActionCancel(ctx, invoice.ID)
	require.NoError(t, err)

	_, err = stack.Invoices.ActionRestore(ctx, invoice.ID)
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)

	reloaded, err := stack.Invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCanceled, reloaded.Status)
}

func TestMarkPaidRequiresConfirmedInvoice(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	invoice, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)

	err = stack.Invoices.MarkPaid(ctx, stack.DB, invoice)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	assert.Error(t, stack.Invoices.MarkPaid(ctx, nil, invoice))
}

func TestDeleteGuards(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	draft, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)
	require.NoError(t, stack.Invoices.Delete(ctx, draft.ID))
	assert.Zero(t, testutil.CountRows(t, stack.DB, "invoices"))
	assert.Zero(t, testutil.CountRows(t, stack.DB, "invoice_lines"))

	_, err = stack.Invoices.Get(ctx, draft.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	paid, err := stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)
	_, err = stack.Invoices.ActionConfirm(ctx, paid.ID)
	require.NoError(t, err)
	_, err = stack.Payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:     paid.ID,
		Amount:        testutil.Dec("1.00"),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	err = stack.Invoices.Delete(ctx, paid.ID)
	require.Error(t, err)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.ErrBusinessRule, appErr.Kind)

	_, err = stack.Invoices.ActionCancel(ctx, paid.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, stack.Invoices.Delete(ctx, paid.ID), apperror.ErrBusinessRule)
}

func TestListBySubscription(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	empty, err := stack.Invoices.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	february := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	_, err = stack.Invoices.GenerateForPeriod(ctx, sub.ID, february)
	require.NoError(t, err)
	_, err = stack.Invoices.GenerateForPeriod(ctx, sub.ID, january)
	require.NoError(t, err)

	invoices, err := stack.Invoices.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.True(t, invoices[0].PeriodStart.Equal(january))
	assert.True(t, invoices[1].PeriodStart.Equal(february))
}
