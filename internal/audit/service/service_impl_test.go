package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	"github.com/smallbiznis/billingcore/internal/audit/mocks"
	auditrepo "github.com/smallbiznis/billingcore/internal/audit/repository"
	auditservice "github.com/smallbiznis/billingcore/internal/audit/service"
	"github.com/smallbiznis/billingcore/internal/auditcontext"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/testutil"
)

func newService(t *testing.T, repo auditdomain.Repository) (auditdomain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(testutil.StackStart),
		Repo:  repo,
	})
	return svc, db
}

func TestRecordWritesActorRequestAndMaskedSnapshot(t *testing.T) {
	svc, db := newService(t, auditrepo.Provide())
	node := testutil.NewNode(t)
	actor := node.Generate()
	entityID := node.Generate()

	ctx := auditcontext.WithActor(context.Background(), actor)
	ctx = auditcontext.WithRequestID(ctx, "req-42")

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Record(ctx, tx, auditdomain.Entry{
			EntityType: auditdomain.EntityPayment,
			EntityID:   entityID,
			Action:     auditdomain.ActionPaymentRecorded,
			New:        map[string]any{"amount": "10.00", "reference": "4111111111111111"},
		})
	})
	require.NoError(t, err)

	var row auditdomain.AuditLog
	require.NoError(t, db.First(&row, "entity_id = ?", entityID).Error)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, actor, *row.ActorID)
	require.NotNil(t, row.RequestID)
	assert.Equal(t, "req-42", *row.RequestID)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(row.NewValue, &snapshot))
	assert.Equal(t, "10.00", snapshot["amount"])
	assert.NotEqual(t, "4111111111111111", snapshot["reference"])
}

func TestRecordRequiresTransactionAndEntity(t *testing.T) {
	svc, db := newService(t, auditrepo.Provide())
	ctx := context.Background()

	err := svc.Record(ctx, nil, auditdomain.Entry{EntityType: "subscription", EntityID: 1, Action: auditdomain.ActionCreated})
	assert.Error(t, err)

	err = svc.Record(ctx, db, auditdomain.Entry{EntityType: " ", EntityID: 1, Action: auditdomain.ActionCreated})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidEntity)

	err = svc.Record(ctx, db, auditdomain.Entry{EntityType: "subscription", EntityID: 1})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordFailureAbortsTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	svc, db := newService(t, repo)
	node := testutil.NewNode(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO tax_rates (id, name, percent, created_at) VALUES (?, ?, ?, ?)`,
			node.Generate(), "pending", "5", testutil.StackStart,
		).Error; err != nil {
			return err
		}
		return svc.Record(ctx, tx, auditdomain.Entry{
			EntityType: auditdomain.EntitySubscription,
			EntityID:   node.Generate(),
			Action:     auditdomain.ActionCreated,
		})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, testutil.CountRows(t, db, "tax_rates"))
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, db := newService(t, auditrepo.Provide())
	node := testutil.NewNode(t)
	ctx := context.Background()
	entityID := node.Generate()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Record(ctx, tx, auditdomain.Entry{
				EntityType: auditdomain.EntitySubscription,
				EntityID:   entityID,
				Action:     auditdomain.ActionUpdated,
				New:        map[string]any{"step": i},
			})
		}))
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Record(ctx, tx, auditdomain.Entry{
			EntityType: auditdomain.EntityInvoice,
			EntityID:   node.Generate(),
			Action:     auditdomain.ActionCreated,
		})
	}))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		EntityType: auditdomain.EntitySubscription,
		EntityID:   &entityID,
		PageSize:   3,
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)
	assert.Greater(t, first.AuditLogs[0].ID, first.AuditLogs[1].ID)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		EntityType: auditdomain.EntitySubscription,
		EntityID:   &entityID,
		PageSize:   3,
		PageToken:  first.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.False(t, second.HasMore)
	assert.Less(t, second.AuditLogs[0].ID, first.AuditLogs[2].ID)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newService(t, auditrepo.Provide())
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := testutil.StackStart
	end := start.Add(-1)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
