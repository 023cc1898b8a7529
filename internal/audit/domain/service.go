package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one mutation. Old and New are marshalled to JSON; nil
// leaves the column empty.
type Entry struct {
	EntityType string
	EntityID   snowflake.ID
	Action     Action
	Old        any
	New        any
}

type ListAuditLogRequest struct {
	EntityType string
	EntityID   *snowflake.ID
	Action     Action
	ActorID    *snowflake.ID
	StartAt    *time.Time
	EndAt      *time.Time
	PageToken  string
	PageSize   int32
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record appends entry on tx. A failure must abort the caller's
	// transaction.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidEntity    = errors.New("invalid_entity")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
