// Package domain contains the append-only audit trail model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Action string

const (
	ActionCreated         Action = "CREATED"
	ActionUpdated         Action = "UPDATED"
	ActionDeleted         Action = "DELETED"
	ActionStatusChange    Action = "STATUS_CHANGE"
	ActionLineAdded       Action = "LINE_ADDED"
	ActionLineRemoved     Action = "LINE_REMOVED"
	ActionRenewed         Action = "RENEWED"
	ActionPaymentRecorded Action = "PAYMENT_RECORDED"
)

const (
	EntitySubscription = "subscription"
	EntityInvoice      = "invoice"
	EntityPayment      = "payment"
)

// AuditLog records one mutation. Rows are inserted on the same transaction
// as the change they describe and never updated.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	ActorID    *snowflake.ID  `gorm:"index" json:"actor_id,omitempty"`
	EntityType string         `gorm:"type:text;not null;index:idx_audit_logs_entity,priority:1" json:"entity_type"`
	EntityID   snowflake.ID   `gorm:"not null;index:idx_audit_logs_entity,priority:2" json:"entity_id"`
	Action     Action         `gorm:"type:text;not null" json:"action"`
	OldValue   datatypes.JSON `json:"old_value,omitempty"`
	NewValue   datatypes.JSON `json:"new_value,omitempty"`
	RequestID  *string        `gorm:"type:text" json:"request_id,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
