package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/billingcore/internal/apperror"
	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	"github.com/smallbiznis/billingcore/internal/audit/mocks"
	auditservice "github.com/smallbiznis/billingcore/internal/audit/service"
	"github.com/smallbiznis/billingcore/internal/config"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	subscriptionservice "github.com/smallbiznis/billingcore/internal/subscription/service"
	"github.com/smallbiznis/billingcore/internal/testutil"
)

func TestCreateNumbersDraftsAndAudits(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	first, err := stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Catalog.Customer.ID,
		PlanID: stack.Catalog.Monthly.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDraft, first.Status)
	assert.Equal(t, "SUB-00001", first.Number)

	second, err := stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Catalog.Customer.ID,
		PlanID: stack.Catalog.Yearly.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "SUB-00002", second.Number)

	assert.Equal(t, []auditdomain.Action{auditdomain.ActionCreated},
		stack.AuditActions(t, auditdomain.EntitySubscription, first.ID))
}

func TestCreateRequiresExistingUserAndPlan(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	_, err := stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Node.Generate(),
		PlanID: stack.Catalog.Monthly.ID,
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Catalog.Customer.ID,
		PlanID: stack.Node.Generate(),
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{PlanID: stack.Catalog.Monthly.ID})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	assert.Zero(t, testutil.CountRows(t, stack.DB, "subscriptions"))
}

func TestAddLineValidatesInput(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)
	require.Len(t, sub.Lines, 1)
	assert.Equal(t, 1, sub.Lines[0].Position)

	_, err := stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Variant.ID,
		Quantity:       testutil.Dec("0"),
		UnitPrice:      testutil.Dec("1"),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Variant.ID,
		Quantity:       testutil.Dec("1"),
		UnitPrice:      testutil.Dec("-0.01"),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	for _, tc := range []struct{ quantity, price string }{
		{"0.004", "1"},
		{"1.005", "1"},
		{"1", "9.999"},
	} {
		_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
			SubscriptionID: sub.ID,
			VariantID:      stack.Catalog.Variant.ID,
			Quantity:       testutil.Dec(tc.quantity),
			UnitPrice:      testutil.Dec(tc.price),
		})
		assert.ErrorIs(t, err, apperror.ErrValidation, "quantity %s price %s", tc.quantity, tc.price)
	}

	_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Node.Generate(),
		Quantity:       testutil.Dec("1"),
		UnitPrice:      testutil.Dec("1"),
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	missingTax := stack.Node.Generate()
	_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Variant.ID,
		Quantity:       testutil.Dec("1"),
		UnitPrice:      testutil.Dec("1"),
		TaxRateID:      &missingTax,
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	discountID := stack.Catalog.TenPercent.ID
	sub, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Addon.ID,
		Quantity:       testutil.Dec("1.500"),
		UnitPrice:      testutil.Dec("9.990"),
		DiscountID:     &discountID,
	})
	require.NoError(t, err)
	require.Len(t, sub.Lines, 2)
	assert.Equal(t, 2, sub.Lines[1].Position)
	assert.Equal(t, "1.50", sub.Lines[1].Quantity.StringFixed(2))
	assert.Equal(t, "9.99", sub.Lines[1].UnitPrice.StringFixed(2))
}

func TestLinesFrozenAfterConfirm(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	_, err := stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.NoError(t, err)

	_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Variant.ID,
		Quantity:       testutil.Dec("1"),
		UnitPrice:      testutil.Dec("1"),
	})
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)

	_, err = stack.Subscriptions.RemoveLine(ctx, sub.ID, sub.Lines[0].ID)
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)
}

func TestRemoveLine(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	_, err := stack.Subscriptions.RemoveLine(ctx, sub.ID, stack.Node.Generate())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	sub, err = stack.Subscriptions.RemoveLine(ctx, sub.ID, sub.Lines[0].ID)
	require.NoError(t, err)
	assert.Empty(t, sub.Lines)
	assert.Equal(t, []auditdomain.Action{
		auditdomain.ActionCreated,
		auditdomain.ActionLineAdded,
		auditdomain.ActionLineRemoved,
	}, stack.AuditActions(t, auditdomain.EntitySubscription, sub.ID))
}

func TestConfirmWithoutLinesKeepsDraft(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	sub, err := stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Catalog.Customer.ID,
		PlanID: stack.Catalog.Monthly.ID,
	})
	require.NoError(t, err)

	_, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.ErrorIs(t, err, apperror.ErrBusinessRule)

	reloaded, err := stack.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDraft, reloaded.Status)
	assert.Nil(t, reloaded.OrderDate)
}

func TestLifecycleSetsDates(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	sub, err := stack.Subscriptions.ActionQuote(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusQuotation, sub.Status)

	sub, err = stack.Subscriptions.ActionRevertToDraft(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDraft, sub.Status)

	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	sub, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, &start)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusConfirmed, sub.Status)
	require.NotNil(t, sub.StartDate)
	assert.True(t, sub.StartDate.Equal(start))
	require.NotNil(t, sub.OrderDate)
	assert.True(t, sub.OrderDate.Equal(testutil.StackStart))

	sub, err = stack.Subscriptions.ActionActivate(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.NextBillingDate)
	assert.True(t, sub.NextBillingDate.Equal(time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)))

	stack.Clock.Advance(48 * time.Hour)
	sub, err = stack.Subscriptions.ActionClose(ctx, sub.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusClosed, sub.Status)
	require.NotNil(t, sub.EndDate)
	assert.True(t, sub.EndDate.Equal(testutil.StackStart.Add(48*time.Hour)))

	reloaded, err := stack.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusClosed, reloaded.Status)
	assert.Len(t, reloaded.Lines, 1)

	actions := stack.AuditActions(t, auditdomain.EntitySubscription, sub.ID)
	statusChanges := 0
	for _, action := range actions {
		if action == auditdomain.ActionStatusChange {
			statusChanges++
		}
	}
	assert.Equal(t, 5, statusChanges)
}

func TestConfirmKeepsExistingStartDate(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	start := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	sub, err := stack.Subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID:    stack.Catalog.Customer.ID,
		PlanID:    stack.Catalog.Monthly.ID,
		StartDate: &start,
	})
	require.NoError(t, err)
	_, err = stack.Subscriptions.AddLine(ctx, subscriptiondomain.AddLineRequest{
		SubscriptionID: sub.ID,
		VariantID:      stack.Catalog.Variant.ID,
		Quantity:       testutil.Dec("1"),
		UnitPrice:      testutil.Dec("50"),
	})
	require.NoError(t, err)

	sub, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, sub.StartDate)
	assert.True(t, sub.StartDate.Equal(start))
}

func TestTransitionsOutsideTableAreRejected(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	_, err := stack.Subscriptions.ActionClose(ctx, sub.ID, nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = stack.Subscriptions.ActionActivate(ctx, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = stack.Subscriptions.ActionRevertToDraft(ctx, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.NoError(t, err)
	_, err = stack.Subscriptions.ActionQuote(ctx, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = stack.Subscriptions.ActionQuote(ctx, stack.Node.Generate())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var appErr *apperror.Error
	_, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, string(subscriptiondomain.SubscriptionStatusConfirmed), appErr.From)
}

func TestClosedIsTerminal(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.ActiveWithLine(t)

	_, err := stack.Subscriptions.ActionClose(ctx, sub.ID, nil)
	require.NoError(t, err)

	for _, attempt := range []func() error{
		func() error { _, err := stack.Subscriptions.ActionQuote(ctx, sub.ID); return err },
		func() error { _, err := stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil); return err },
		func() error { _, err := stack.Subscriptions.ActionActivate(ctx, sub.ID); return err },
		func() error { _, err := stack.Subscriptions.ActionClose(ctx, sub.ID, nil); return err },
		func() error { _, err := stack.Subscriptions.ActionCancel(ctx, sub.ID, nil); return err },
		func() error { _, err := stack.Subscriptions.ActionRevertToDraft(ctx, sub.ID); return err },
	} {
		assert.ErrorIs(t, attempt(), apperror.ErrInvalidTransition)
	}
}

func TestCancelRecordsCancelAction(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	_, err := stack.Subscriptions.ActionQuote(ctx, sub.ID)
	require.NoError(t, err)

	end := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	sub, err = stack.Subscriptions.ActionCancel(ctx, sub.ID, &end)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusClosed, sub.Status)
	assert.True(t, sub.EndDate.Equal(end))

	var row auditdomain.AuditLog
	require.NoError(t, stack.DB.
		Where("entity_id = ? AND action = ?", sub.ID, auditdomain.ActionStatusChange).
		Order("id desc").
		First(&row).Error)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(row.NewValue, &snapshot))
	assert.Equal(t, "CLOSED", snapshot["status"])
	assert.Equal(t, "cancel", snapshot["action"])
}

func TestRenew(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	draft := stack.DraftWithLine(t)
	_, err := stack.Subscriptions.ActionRenew(ctx, draft.ID)
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)

	expiration := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	_, err = stack.Subscriptions.Update(ctx, draft.ID, subscriptiondomain.UpdateSubscriptionRequest{ExpirationDate: &expiration})
	require.NoError(t, err)
	_, err = stack.Subscriptions.ActionConfirm(ctx, draft.ID, nil)
	require.NoError(t, err)
	source, err := stack.Subscriptions.ActionActivate(ctx, draft.ID)
	require.NoError(t, err)

	renewed, err := stack.Subscriptions.ActionRenew(ctx, source.ID)
	require.NoError(t, err)
	assert.NotEqual(t, source.ID, renewed.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDraft, renewed.Status)
	assert.Equal(t, source.UserID, renewed.UserID)
	assert.Equal(t, source.PlanID, renewed.PlanID)
	require.NotNil(t, renewed.Notes)
	assert.Equal(t, "Renewed from "+source.Number, *renewed.Notes)
	require.NotNil(t, renewed.NextBillingDate)
	assert.True(t, renewed.NextBillingDate.Equal(time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)))

	reloaded, err := stack.Subscriptions.Get(ctx, renewed.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Lines, 1)
	assert.NotEqual(t, source.Lines[0].ID, reloaded.Lines[0].ID)
	assert.Equal(t, source.Lines[0].VariantID, reloaded.Lines[0].VariantID)
	assert.True(t, source.Lines[0].Quantity.Equal(reloaded.Lines[0].Quantity))

	assert.Equal(t, []auditdomain.Action{auditdomain.ActionRenewed},
		stack.AuditActions(t, auditdomain.EntitySubscription, renewed.ID))

	unchanged, err := stack.Subscriptions.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, unchanged.Status)
}

func TestUpdatePatchesEditableSubscriptions(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()
	sub := stack.DraftWithLine(t)

	notes := "annual contract"
	method := "  bank_transfer "
	terms := 14
	sub, err := stack.Subscriptions.Update(ctx, sub.ID, subscriptiondomain.UpdateSubscriptionRequest{
		PlanID:          &stack.Catalog.Yearly.ID,
		Notes:           &notes,
		PaymentMethod:   &method,
		PaymentTermDays: &terms,
	})
	require.NoError(t, err)
	assert.Equal(t, stack.Catalog.Yearly.ID, sub.PlanID)
	assert.Equal(t, notes, *sub.Notes)
	assert.Equal(t, "bank_transfer", *sub.PaymentMethod)
	assert.Equal(t, 14, sub.PaymentTermDays)

	missingPlan := stack.Node.Generate()
	_, err = stack.Subscriptions.Update(ctx, sub.ID, subscriptiondomain.UpdateSubscriptionRequest{PlanID: &missingPlan})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	negative := -1
	_, err = stack.Subscriptions.Update(ctx, sub.ID, subscriptiondomain.UpdateSubscriptionRequest{PaymentTermDays: &negative})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = stack.Subscriptions.ActionConfirm(ctx, sub.ID, nil)
	require.NoError(t, err)
	_, err = stack.Subscriptions.Update(ctx, sub.ID, subscriptiondomain.UpdateSubscriptionRequest{Notes: &notes})
	require.NoError(t, err)

	_, err = stack.Subscriptions.ActionActivate(ctx, sub.ID)
	require.NoError(t, err)
	_, err = stack.Subscriptions.Update(ctx, sub.ID, subscriptiondomain.UpdateSubscriptionRequest{Notes: &notes})
	assert.ErrorIs(t, err, apperror.ErrBusinessRule)
}

func TestDeleteOnlyDrafts(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	confirmed := stack.DraftWithLine(t)
	_, err := stack.Subscriptions.ActionConfirm(ctx, confirmed.ID, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, stack.Subscriptions.Delete(ctx, confirmed.ID), apperror.ErrBusinessRule)

	draft := stack.DraftWithLine(t)
	require.NoError(t, stack.Subscriptions.Delete(ctx, draft.ID))

	_, err = stack.Subscriptions.Get(ctx, draft.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, int64(1), testutil.CountRows(t, stack.DB, "subscription_lines"))

	actions := stack.AuditActions(t, auditdomain.EntitySubscription, draft.ID)
	require.NotEmpty(t, actions)
	assert.Equal(t, auditdomain.ActionDeleted, actions[len(actions)-1])

	assert.ErrorIs(t, stack.Subscriptions.Delete(ctx, draft.ID), apperror.ErrNotFound)
}

func TestListFiltersAndPages(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sub := stack.DraftWithLine(t)
		ids = append(ids, sub.ID.String())
	}
	active := stack.ActiveWithLine(t)

	page, err := stack.Subscriptions.List(ctx, subscriptiondomain.ListSubscriptionRequest{
		Status:   subscriptiondomain.SubscriptionStatusDraft,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, page.Subscriptions, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Subscriptions[0].ID.String())

	next, err := stack.Subscriptions.List(ctx, subscriptiondomain.ListSubscriptionRequest{
		Status:    subscriptiondomain.SubscriptionStatusDraft,
		PageSize:  2,
		PageToken: page.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, next.Subscriptions, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, ids[0], next.Subscriptions[0].ID.String())

	byStatus, err := stack.Subscriptions.List(ctx, subscriptiondomain.ListSubscriptionRequest{
		Status: subscriptiondomain.SubscriptionStatusActive,
		UserID: &stack.Catalog.Customer.ID,
	})
	require.NoError(t, err)
	require.Len(t, byStatus.Subscriptions, 1)
	assert.Equal(t, active.ID, byStatus.Subscriptions[0].ID)

	_, err = stack.Subscriptions.List(ctx, subscriptiondomain.ListSubscriptionRequest{Status: "PAUSED"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = stack.Subscriptions.List(ctx, subscriptiondomain.ListSubscriptionRequest{PageToken: "not-a-token"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestAuditFailureRollsBackMutation(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	auditRepo := mocks.NewMockRepository(ctrl)
	auditRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("audit store offline")).AnyTimes()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    stack.DB,
		Log:   zap.NewNop(),
		GenID: stack.Node,
		Clock: stack.Clock,
		Repo:  auditRepo,
	})
	svc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          stack.DB,
		Log:         zap.NewNop(),
		GenID:       stack.Node,
		Clock:       stack.Clock,
		Repo:        stack.SubscriptionRepo,
		CatalogRepo: stack.CatalogRepo,
		AuditSvc:    auditSvc,
		Billing:     config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})

	_, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Catalog.Customer.ID,
		PlanID: stack.Catalog.Monthly.ID,
	})
	require.Error(t, err)
	assert.Zero(t, testutil.CountRows(t, stack.DB, "subscriptions"))

	sub := stack.DraftWithLine(t)
	_, err = svc.ActionQuote(ctx, sub.ID)
	require.Error(t, err)

	reloaded, err := stack.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDraft, reloaded.Status)
}

func TestNumberPrefixComesFromConfig(t *testing.T) {
	stack := testutil.NewStack(t)
	ctx := context.Background()

	cfg := config.DefaultBillingConfig()
	cfg.SubscriptionNumberPrefix = "SO"
	svc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          stack.DB,
		Log:         zap.NewNop(),
		GenID:       stack.Node,
		Clock:       stack.Clock,
		Repo:        stack.SubscriptionRepo,
		CatalogRepo: stack.CatalogRepo,
		AuditSvc:    stack.Audit,
		Billing:     config.NewStaticBillingConfigHolder(cfg),
	})

	sub, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		UserID: stack.Catalog.Customer.ID,
		PlanID: stack.Catalog.Monthly.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "SO-00001", sub.Number)
}
