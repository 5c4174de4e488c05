package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is one link of the hash chained audit trail. The ID sequence
// defines chain order. Before/After/Meta store canonical JSON text.
type AuditLog struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;index" json:"createdAt"`
	ActorUserID *uuid.UUID `gorm:"column:actor_user_id;type:uuid;index" json:"actorUserId,omitempty"`
	ActorRole   *string    `gorm:"column:actor_role" json:"actorRole,omitempty"`
	Action      string     `gorm:"column:action;type:text;not null;index" json:"action"`
	EntityType  string     `gorm:"column:entity_type;type:text;not null;index:ix_audit_logs_entity,priority:1" json:"entityType"`
	EntityID    string     `gorm:"column:entity_id;type:text;not null;index:ix_audit_logs_entity,priority:2" json:"entityId"`
	Before      *string    `gorm:"column:before_json;type:text" json:"before,omitempty"`
	After       *string    `gorm:"column:after_json;type:text" json:"after,omitempty"`
	Meta        *string    `gorm:"column:meta_json;type:text" json:"meta,omitempty"`
	PrevHash    *string    `gorm:"column:prev_hash" json:"prevHash,omitempty"`
	Hash        *string    `gorm:"column:hash" json:"hash,omitempty"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
