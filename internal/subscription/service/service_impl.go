package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/apperror"
	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/billingcore/internal/catalog/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	"github.com/smallbiznis/billingcore/internal/observability/logger"
	"github.com/smallbiznis/billingcore/internal/observability/metrics"
	"github.com/smallbiznis/billingcore/internal/pricing"
	"github.com/smallbiznis/billingcore/internal/statemachine"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/billingcore/pkg/db"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entity = auditdomain.EntitySubscription

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        subscriptiondomain.Repository
	catalogRepo catalogdomain.Repository
	auditSvc    auditdomain.Service
	billing     *config.BillingConfigHolder
	metrics     *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	CatalogRepo catalogdomain.Repository
	AuditSvc    auditdomain.Service
	Billing     *config.BillingConfigHolder
	Metrics     *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		auditSvc:    p.AuditSvc,
		billing:     p.Billing,
		metrics:     p.Metrics,
	}
}

// statusChange is the audit snapshot of a transition.
type statusChange struct {
	Status subscriptiondomain.SubscriptionStatus `json:"status"`
	Action statemachine.Action                   `json:"action,omitempty"`
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	if req.UserID == 0 {
		return nil, apperror.Validation("user_id is required")
	}
	if req.PlanID == 0 {
		return nil, apperror.Validation("plan_id is required")
	}
	if req.PaymentTermDays < 0 {
		return nil, apperror.Validation("payment_term_days must not be negative")
	}

	var created *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.catalogRepo.FindUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if _, err := s.catalogRepo.FindPlan(ctx, tx, req.PlanID); err != nil {
			return err
		}

		now := s.clock.Now()
		subscription := &subscriptiondomain.Subscription{
			ID:              s.genID.Generate(),
			UserID:          req.UserID,
			PlanID:          req.PlanID,
			Status:          subscriptiondomain.SubscriptionStatusDraft,
			SalespersonID:   req.SalespersonID,
			StartDate:       utcPtr(req.StartDate),
			ExpirationDate:  utcPtr(req.ExpirationDate),
			PaymentTermDays: req.PaymentTermDays,
			PaymentMethod:   trimmedPtr(req.PaymentMethod),
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.insert(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionCreated,
			New:        subscription,
		}); err != nil {
			return err
		}

		created = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("subscription created",
		zap.String("subscription_id", created.ID.String()),
		zap.String("number", created.Number),
	)
	return created, nil
}

// insert assigns the next number and stores the subscription. Two writers
// racing for the same number surface as a conflict.
func (s *Service) insert(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	seq, err := s.repo.NextSequence(ctx, tx)
	if err != nil {
		return fmt.Errorf("next subscription sequence: %w", err)
	}
	subscription.Sequence = seq
	subscription.Number = fmt.Sprintf("%s-%05d", s.billing.Get().SubscriptionNumberPrefix, seq)

	if err := s.repo.Insert(ctx, tx, subscription); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return apperror.Conflict("subscription number %s is already taken, retry", subscription.Number)
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, apperror.NotFound(entity, id)
	}
	if err := s.loadLines(ctx, s.db, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	if req.Status != "" && !isValidStatus(req.Status) {
		return subscriptiondomain.ListSubscriptionResponse{}, apperror.Validation("unknown subscription status %q", req.Status)
	}

	var afterID *snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, apperror.Validation("invalid page token")
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return subscriptiondomain.ListSubscriptionResponse{}, apperror.Validation("invalid page token")
		}
		afterID = &id
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, subscriptiondomain.ListFilter{
		Status:   req.Status,
		UserID:   req.UserID,
		AfterID:  afterID,
		PageSize: pageSize,
	})
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	page, info, err := pagination.Trim(items, pageSize, func(item subscriptiondomain.Subscription) string {
		return item.ID.String()
	})
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}
	if page == nil {
		page = []subscriptiondomain.Subscription{}
	}
	return subscriptiondomain.ListSubscriptionResponse{PageInfo: info, Subscriptions: page}, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req subscriptiondomain.UpdateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	if req.PaymentTermDays != nil && *req.PaymentTermDays < 0 {
		return nil, apperror.Validation("payment_term_days must not be negative")
	}

	var updated *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch subscription.Status {
		case subscriptiondomain.SubscriptionStatusDraft,
			subscriptiondomain.SubscriptionStatusQuotation,
			subscriptiondomain.SubscriptionStatusConfirmed:
		default:
			return apperror.BusinessRule("subscription %s cannot be edited in status %s", subscription.Number, subscription.Status)
		}

		before := *subscription
		if req.PlanID != nil && *req.PlanID != subscription.PlanID {
			if _, err := s.catalogRepo.FindPlan(ctx, tx, *req.PlanID); err != nil {
				return err
			}
			subscription.PlanID = *req.PlanID
		}
		if req.SalespersonID != nil {
			subscription.SalespersonID = req.SalespersonID
		}
		if req.StartDate != nil {
			subscription.StartDate = utcPtr(req.StartDate)
		}
		if req.ExpirationDate != nil {
			subscription.ExpirationDate = utcPtr(req.ExpirationDate)
		}
		if req.PaymentTermDays != nil {
			subscription.PaymentTermDays = *req.PaymentTermDays
		}
		if req.PaymentMethod != nil {
			subscription.PaymentMethod = trimmedPtr(req.PaymentMethod)
		}
		if req.PaymentDone != nil {
			subscription.PaymentDone = *req.PaymentDone
		}
		if req.Notes != nil {
			subscription.Notes = req.Notes
		}
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionUpdated,
			Old:        before,
			New:        subscription,
		}); err != nil {
			return err
		}

		if err := s.loadLines(ctx, tx, subscription); err != nil {
			return err
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription.Status != subscriptiondomain.SubscriptionStatusDraft {
			return apperror.BusinessRule("only draft subscriptions can be deleted, %s is %s", subscription.Number, subscription.Status)
		}
		if err := s.loadLines(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.repo.Delete(ctx, tx, subscription.ID); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionDeleted,
			Old:        subscription,
		})
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("subscription deleted", zap.String("subscription_id", id.String()))
	return nil
}

func (s *Service) AddLine(ctx context.Context, req subscriptiondomain.AddLineRequest) (*subscriptiondomain.Subscription, error) {
	if req.VariantID == 0 {
		return nil, apperror.Validation("variant_id is required")
	}
	if !req.Quantity.IsPositive() {
		return nil, apperror.Validation("quantity must be greater than zero")
	}
	if req.UnitPrice.IsNegative() {
		return nil, apperror.Validation("unit_price must not be negative")
	}
	// both columns are numeric(14,2)
	if !req.Quantity.Equal(pricing.Round2(req.Quantity)) {
		return nil, apperror.Validation("quantity %s has more than two decimal places", req.Quantity.String())
	}
	if !req.UnitPrice.Equal(pricing.Round2(req.UnitPrice)) {
		return nil, apperror.Validation("unit_price %s has more than two decimal places", req.UnitPrice.String())
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.lock(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if err := ensureLinesEditable(subscription); err != nil {
			return err
		}

		if _, err := s.catalogRepo.FindVariant(ctx, tx, req.VariantID); err != nil {
			return err
		}
		if req.DiscountID != nil {
			if _, err := s.catalogRepo.FindDiscount(ctx, tx, *req.DiscountID); err != nil {
				return err
			}
		}
		if req.TaxRateID != nil {
			if _, err := s.catalogRepo.FindTaxRate(ctx, tx, *req.TaxRateID); err != nil {
				return err
			}
		}

		position, err := s.repo.NextLinePosition(ctx, tx, subscription.ID)
		if err != nil {
			return fmt.Errorf("next line position: %w", err)
		}
		line := subscriptiondomain.SubscriptionLine{
			ID:             s.genID.Generate(),
			SubscriptionID: subscription.ID,
			Position:       position,
			VariantID:      req.VariantID,
			Quantity:       req.Quantity,
			UnitPrice:      req.UnitPrice,
			DiscountID:     req.DiscountID,
			TaxRateID:      req.TaxRateID,
			Notes:          req.Notes,
			CreatedAt:      s.clock.Now(),
		}
		if err := s.repo.InsertLines(ctx, tx, []subscriptiondomain.SubscriptionLine{line}); err != nil {
			return fmt.Errorf("insert subscription line: %w", err)
		}

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionLineAdded,
			New:        line,
		}); err != nil {
			return err
		}

		if err := s.loadLines(ctx, tx, subscription); err != nil {
			return err
		}
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) RemoveLine(ctx context.Context, subscriptionID, lineID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.lock(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if err := ensureLinesEditable(subscription); err != nil {
			return err
		}

		line, err := s.repo.FindLine(ctx, tx, subscription.ID, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return apperror.NotFound("subscription_line", lineID)
		}
		if err := s.repo.DeleteLine(ctx, tx, line.ID); err != nil {
			return fmt.Errorf("delete subscription line: %w", err)
		}

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionLineRemoved,
			Old:        line,
		}); err != nil {
			return err
		}

		if err := s.loadLines(ctx, tx, subscription); err != nil {
			return err
		}
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) ActionQuote(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, statemachine.ActionQuote, nil)
}

func (s *Service) ActionRevertToDraft(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, statemachine.ActionRevert, nil)
}

func (s *Service) ActionConfirm(ctx context.Context, id snowflake.ID, startDate *time.Time) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, statemachine.ActionConfirm, func(tx *gorm.DB, subscription *subscriptiondomain.Subscription, now time.Time) error {
		count, err := s.repo.CountLines(ctx, tx, subscription.ID)
		if err != nil {
			return fmt.Errorf("count subscription lines: %w", err)
		}
		if count == 0 {
			return apperror.BusinessRule("subscription %s has no lines and cannot be confirmed", subscription.Number)
		}

		switch {
		case startDate != nil:
			subscription.StartDate = utcPtr(startDate)
		case subscription.StartDate == nil:
			subscription.StartDate = &now
		}
		subscription.OrderDate = &now
		return nil
	})
}

func (s *Service) ActionActivate(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, statemachine.ActionActivate, func(tx *gorm.DB, subscription *subscriptiondomain.Subscription, _ time.Time) error {
		if subscription.StartDate == nil {
			return apperror.BusinessRule("subscription %s has no start date and cannot be activated", subscription.Number)
		}
		plan, err := s.catalogRepo.FindPlan(ctx, tx, subscription.PlanID)
		if err != nil {
			return err
		}
		next, err := plan.NextBillingDate(*subscription.StartDate)
		if err != nil {
			return err
		}
		subscription.NextBillingDate = &next
		return nil
	})
}

func (s *Service) ActionClose(ctx context.Context, id snowflake.ID, endDate *time.Time) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, statemachine.ActionClose, closeAt(endDate))
}

// ActionCancel closes the subscription like ActionClose. The audit entry
// records the cancel action so the two stay distinguishable.
func (s *Service) ActionCancel(ctx context.Context, id snowflake.ID, endDate *time.Time) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, statemachine.ActionCancel, closeAt(endDate))
}

func closeAt(endDate *time.Time) func(*gorm.DB, *subscriptiondomain.Subscription, time.Time) error {
	return func(_ *gorm.DB, subscription *subscriptiondomain.Subscription, now time.Time) error {
		if endDate != nil {
			subscription.EndDate = utcPtr(endDate)
		} else {
			subscription.EndDate = &now
		}
		return nil
	}
}

func (s *Service) ActionRenew(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var renewed *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch source.Status {
		case subscriptiondomain.SubscriptionStatusConfirmed,
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusClosed:
		default:
			return apperror.BusinessRule("subscription %s cannot be renewed in status %s", source.Number, source.Status)
		}

		plan, err := s.catalogRepo.FindPlan(ctx, tx, source.PlanID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		base := now
		if source.ExpirationDate != nil {
			base = *source.ExpirationDate
		}
		next, err := plan.NextBillingDate(base)
		if err != nil {
			return err
		}

		notes := "Renewed from " + source.Number
		subscription := &subscriptiondomain.Subscription{
			ID:              s.genID.Generate(),
			UserID:          source.UserID,
			PlanID:          source.PlanID,
			Status:          subscriptiondomain.SubscriptionStatusDraft,
			SalespersonID:   source.SalespersonID,
			NextBillingDate: &next,
			PaymentTermDays: source.PaymentTermDays,
			PaymentMethod:   source.PaymentMethod,
			Notes:           &notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.insert(ctx, tx, subscription); err != nil {
			return err
		}

		lines, err := s.repo.ListLines(ctx, tx, source.ID)
		if err != nil {
			return fmt.Errorf("list subscription lines: %w", err)
		}
		copies := make([]subscriptiondomain.SubscriptionLine, 0, len(lines))
		for _, line := range lines {
			line.ID = s.genID.Generate()
			line.SubscriptionID = subscription.ID
			line.CreatedAt = now
			copies = append(copies, line)
		}
		if err := s.repo.InsertLines(ctx, tx, copies); err != nil {
			return fmt.Errorf("copy subscription lines: %w", err)
		}
		subscription.Lines = copies

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionRenewed,
			New: map[string]any{
				"renewed_from":        source.ID.String(),
				"renewed_from_number": source.Number,
				"number":              subscription.Number,
				"lines":               len(copies),
			},
		}); err != nil {
			return err
		}

		renewed = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("subscription renewed",
		zap.String("subscription_id", renewed.ID.String()),
		zap.String("renewed_from", id.String()),
	)
	return renewed, nil
}

// transition moves the subscription along the table for action. mutate runs
// after the table check and may reject the change with a business rule.
func (s *Service) transition(
	ctx context.Context,
	id snowflake.ID,
	action statemachine.Action,
	mutate func(tx *gorm.DB, subscription *subscriptiondomain.Subscription, now time.Time) error,
) (*subscriptiondomain.Subscription, error) {
	target, ok := statemachine.SubscriptionTarget(action)
	if !ok {
		return nil, apperror.Validation("unknown subscription action %q", action)
	}

	var (
		result *subscriptiondomain.Subscription
		from   subscriptiondomain.SubscriptionStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		from = subscription.Status
		if !statemachine.CanTransitionSubscription(from, target) {
			return apperror.InvalidTransition(entity, from, target)
		}

		now := s.clock.Now()
		if mutate != nil {
			if err := mutate(tx, subscription, now); err != nil {
				return err
			}
		}
		subscription.Status = target
		subscription.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return fmt.Errorf("update subscription status: %w", err)
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			EntityType: entity,
			EntityID:   subscription.ID,
			Action:     auditdomain.ActionStatusChange,
			Old:        statusChange{Status: from},
			New:        statusChange{Status: target, Action: action},
		}); err != nil {
			return err
		}

		if err := s.loadLines(ctx, tx, subscription); err != nil {
			return err
		}
		result = subscription
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Debug("subscription transition rejected",
			zap.String("subscription_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordSubscriptionTransition(ctx, string(from), string(target))
	return result, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if subscription == nil {
		return nil, apperror.NotFound(entity, id)
	}
	return subscription, nil
}

func (s *Service) loadLines(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	lines, err := s.repo.ListLines(ctx, db, subscription.ID)
	if err != nil {
		return fmt.Errorf("list subscription lines: %w", err)
	}
	if lines == nil {
		lines = []subscriptiondomain.SubscriptionLine{}
	}
	subscription.Lines = lines
	return nil
}

func ensureLinesEditable(subscription *subscriptiondomain.Subscription) error {
	switch subscription.Status {
	case subscriptiondomain.SubscriptionStatusDraft, subscriptiondomain.SubscriptionStatusQuotation:
		return nil
	}
	return apperror.BusinessRule("lines of subscription %s cannot change in status %s", subscription.Number, subscription.Status)
}

func isValidStatus(status subscriptiondomain.SubscriptionStatus) bool {
	for _, known := range statemachine.SubscriptionStatuses() {
		if status == known {
			return true
		}
	}
	return false
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
