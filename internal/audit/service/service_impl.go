package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/billingcore/internal/audit/domain"
	"github.com/smallbiznis/billingcore/internal/audit/masking"
	"github.com/smallbiznis/billingcore/internal/auditcontext"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	if tx == nil {
		return fmt.Errorf("audit %s: transaction handle is required", entry.Action)
	}
	if strings.TrimSpace(string(entry.Action)) == "" {
		return auditdomain.ErrInvalidAction
	}
	entityType := strings.TrimSpace(entry.EntityType)
	if entityType == "" || entry.EntityID == 0 {
		return auditdomain.ErrInvalidEntity
	}

	oldValue, err := snapshot(entry.Old)
	if err != nil {
		return fmt.Errorf("audit %s old value: %w", entry.Action, err)
	}
	newValue, err := snapshot(entry.New)
	if err != nil {
		return fmt.Errorf("audit %s new value: %w", entry.Action, err)
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		EntityType: entityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  s.clock.Now(),
	}
	if actorID, ok := auditcontext.ActorFromContext(ctx); ok {
		row.ActorID = &actorID
	}
	if requestID, ok := auditcontext.RequestIDFromContext(ctx); ok {
		row.RequestID = &requestID
	}

	if err := s.repo.Insert(ctx, tx, &row); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", string(entry.Action)),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entry.EntityID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// snapshot marshals v, masks sensitive keys when it is a JSON object and
// returns nil for a nil value.
func snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil || object == nil {
		return datatypes.JSON(raw), nil
	}
	masked, err := json.Marshal(masking.MaskSensitive(object))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(masked), nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var beforeID *snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		beforeID = &id
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Action:     req.Action,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		BeforeID:   beforeID,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	page, info, err := pagination.Trim(items, pageSize, func(item *auditdomain.AuditLog) string {
		return item.ID.String()
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(page))
	for _, item := range page {
		if item != nil {
			logs = append(logs, *item)
		}
	}
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: logs}, nil
}
