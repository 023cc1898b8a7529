package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status   SubscriptionStatus
	UserID   *snowflake.ID
	AfterID  *snowflake.ID
	PageSize int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []SubscriptionLine) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Subscription, error)
	ListLines(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]SubscriptionLine, error)
	CountLines(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int64, error)
	FindLine(ctx context.Context, db *gorm.DB, subscriptionID, lineID snowflake.ID) (*SubscriptionLine, error)
	NextLinePosition(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int, error)
	DeleteLine(ctx context.Context, db *gorm.DB, lineID snowflake.ID) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	NextSequence(ctx context.Context, db *gorm.DB) (int64, error)
}
