package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// CommissionSnapshot freezes one computation of a deal's commission split.
// PolicySnapshot and Meta hold JSON text captured at creation.
type CommissionSnapshot struct {
	ID               uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	DealID           uuid.UUID            `gorm:"column:deal_id;type:uuid;not null;uniqueIndex:ux_commission_snapshots_deal_version,priority:1" json:"dealId"`
	Version          int                  `gorm:"column:version;not null;uniqueIndex:ux_commission_snapshots_deal_version,priority:2" json:"version"`
	PolicyVersionID  uuid.UUID            `gorm:"column:policy_version_id;type:uuid;not null" json:"policyVersionId"`
	BaseAmount       int64                `gorm:"column:base_amount;not null" json:"baseAmount"`
	PoolAmount       int64                `gorm:"column:pool_amount;not null" json:"poolAmount"`
	Currency         string               `gorm:"column:currency;type:text;not null" json:"currency"`
	HunterAmount     int64                `gorm:"column:hunter_amount;not null;default:0" json:"hunterAmount"`
	ConsultantAmount int64                `gorm:"column:consultant_amount;not null;default:0" json:"consultantAmount"`
	BrokerAmount     int64                `gorm:"column:broker_amount;not null;default:0" json:"brokerAmount"`
	SystemAmount     int64                `gorm:"column:system_amount;not null;default:0" json:"systemAmount"`
	PolicySnapshot   string               `gorm:"column:policy_snapshot;type:text;not null" json:"policySnapshot"`
	Meta             *string              `gorm:"column:meta;type:text" json:"meta,omitempty"`
	Status           enums.SnapshotStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	IdempotencyKey   string               `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_commission_snapshots_idempotency_key" json:"idempotencyKey"`
	CreatedByUserID  *uuid.UUID           `gorm:"column:created_by_user_id;type:uuid" json:"createdByUserId,omitempty"`
	ApprovedByUserID *uuid.UUID           `gorm:"column:approved_by_user_id;type:uuid" json:"approvedByUserId,omitempty"`
	ApprovedAt       *time.Time           `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	ReversedByUserID *uuid.UUID           `gorm:"column:reversed_by_user_id;type:uuid" json:"reversedByUserId,omitempty"`
	ReversedAt       *time.Time           `gorm:"column:reversed_at" json:"reversedAt,omitempty"`
	ReversalReason   *string              `gorm:"column:reversal_reason" json:"reversalReason,omitempty"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Lines []CommissionAllocationLine `gorm:"foreignKey:SnapshotID" json:"lines"`
}

func (CommissionSnapshot) TableName() string {
	return "commission_snapshots"
}

func (s *CommissionSnapshot) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// RoleAmountsTotal sums the four role amounts stored on the snapshot.
func (s CommissionSnapshot) RoleAmountsTotal() int64 {
	return s.HunterAmount + s.ConsultantAmount + s.BrokerAmount + s.SystemAmount
}

// CommissionAllocationLine is the per-role share of a snapshot's pool.
type CommissionAllocationLine struct {
	ID                uuid.UUID                  `gorm:"type:uuid;primaryKey" json:"id"`
	SnapshotID        uuid.UUID                  `gorm:"column:snapshot_id;type:uuid;not null;index" json:"snapshotId"`
	Position          int                        `gorm:"column:position;not null" json:"position"`
	Role              enums.CommissionRole       `gorm:"column:role;type:text;not null" json:"role"`
	BeneficiaryUserID *uuid.UUID                 `gorm:"column:beneficiary_user_id;type:uuid;index" json:"beneficiaryUserId,omitempty"`
	BasisPoints       int64                      `gorm:"column:basis_points;not null" json:"basisPoints"`
	Amount            int64                      `gorm:"column:amount;not null" json:"amount"`
	AbsorbsRemainder  bool                       `gorm:"column:absorbs_remainder;not null;default:false" json:"absorbsRemainder"`
	Status            enums.AllocationLineStatus `gorm:"column:status;type:text;not null" json:"status"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (CommissionAllocationLine) TableName() string {
	return "commission_allocation_lines"
}

func (l *CommissionAllocationLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
