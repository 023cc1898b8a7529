package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	EntityType string
	EntityID   *snowflake.ID
	Action     Action
	ActorID    *snowflake.ID
	StartAt    *time.Time
	EndAt      *time.Time
	// BeforeID continues a page: only rows with a smaller id are returned.
	BeforeID *snowflake.ID
	Limit    int
}

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
