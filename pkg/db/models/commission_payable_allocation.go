package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// CommissionPayableAllocation is the beneficiary row driven through the
// approve/void/export workflow. Once ExportedAt is set the row is frozen.
type CommissionPayableAllocation struct {
	ID                uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	SnapshotID        uuid.UUID                    `gorm:"column:snapshot_id;type:uuid;not null;uniqueIndex:ux_payable_allocations_snapshot_beneficiary,priority:1" json:"snapshotId"`
	DealID            uuid.UUID                    `gorm:"column:deal_id;type:uuid;not null;index" json:"dealId"`
	BeneficiaryUserID uuid.UUID                    `gorm:"column:beneficiary_user_id;type:uuid;not null;uniqueIndex:ux_payable_allocations_snapshot_beneficiary,priority:2" json:"beneficiaryUserId"`
	Role              enums.CommissionRole         `gorm:"column:role;type:text;not null" json:"role"`
	PercentBp         int64                        `gorm:"column:percent_bp;not null" json:"percentBp"`
	Amount            int64                        `gorm:"column:amount;not null" json:"amount"`
	Currency          string                       `gorm:"column:currency;type:text;not null" json:"currency"`
	State             enums.PayableAllocationState `gorm:"column:state;type:text;not null;index" json:"state"`
	ApprovedByUserID  *uuid.UUID                   `gorm:"column:approved_by_user_id;type:uuid" json:"approvedByUserId,omitempty"`
	ApprovedAt        *time.Time                   `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	VoidedByUserID    *uuid.UUID                   `gorm:"column:voided_by_user_id;type:uuid" json:"voidedByUserId,omitempty"`
	VoidedAt          *time.Time                   `gorm:"column:voided_at" json:"voidedAt,omitempty"`
	ExportedAt        *time.Time                   `gorm:"column:exported_at" json:"exportedAt,omitempty"`
	ExportBatchID     *string                      `gorm:"column:export_batch_id;index" json:"exportBatchId,omitempty"`
	CreatedAt         time.Time                    `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time                    `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (CommissionPayableAllocation) TableName() string {
	return "commission_payable_allocations"
}

func (a *CommissionPayableAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// IsExported reports whether the row has left the system in an export batch.
func (a CommissionPayableAllocation) IsExported() bool {
	return a.ExportedAt != nil
}
