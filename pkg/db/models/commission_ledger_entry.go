package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// CommissionLedgerEntry is an append-only money movement. Rows are never
// updated or deleted.
type CommissionLedgerEntry struct {
	ID               uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	SnapshotID       uuid.UUID             `gorm:"column:snapshot_id;type:uuid;not null;index" json:"snapshotId"`
	AllocationLineID *uuid.UUID            `gorm:"column:allocation_line_id;type:uuid;index" json:"allocationLineId,omitempty"`
	PayoutID         *uuid.UUID            `gorm:"column:payout_id;type:uuid" json:"payoutId,omitempty"`
	EntryType        enums.LedgerEntryType `gorm:"column:entry_type;type:text;not null" json:"entryType"`
	Direction        enums.LedgerDirection `gorm:"column:direction;type:text;not null" json:"direction"`
	Amount           int64                 `gorm:"column:amount;not null" json:"amount"`
	Currency         string                `gorm:"column:currency;type:text;not null" json:"currency"`
	Memo             *string               `gorm:"column:memo" json:"memo,omitempty"`
	CreatedByUserID  *uuid.UUID            `gorm:"column:created_by_user_id;type:uuid" json:"createdByUserId,omitempty"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (CommissionLedgerEntry) TableName() string {
	return "commission_ledger_entries"
}

func (e *CommissionLedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
