package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommissionPayout groups disbursements drawn from allocation lines.
type CommissionPayout struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Currency        string     `gorm:"column:currency;type:text;not null" json:"currency"`
	TotalAmount     int64      `gorm:"column:total_amount;not null" json:"totalAmount"`
	Reference       *string    `gorm:"column:reference" json:"reference,omitempty"`
	Override        bool       `gorm:"column:override;not null;default:false" json:"override"`
	CreatedByUserID *uuid.UUID `gorm:"column:created_by_user_id;type:uuid" json:"createdByUserId,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`

	Allocations []CommissionPayoutAllocation `gorm:"foreignKey:PayoutID" json:"allocations"`
}

func (CommissionPayout) TableName() string {
	return "commission_payouts"
}

func (p *CommissionPayout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// CommissionPayoutAllocation links one payout to the line it draws from.
type CommissionPayoutAllocation struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PayoutID         uuid.UUID `gorm:"column:payout_id;type:uuid;not null;index" json:"payoutId"`
	AllocationLineID uuid.UUID `gorm:"column:allocation_line_id;type:uuid;not null;index" json:"allocationLineId"`
	Amount           int64     `gorm:"column:amount;not null" json:"amount"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (CommissionPayoutAllocation) TableName() string {
	return "commission_payout_allocations"
}

func (p *CommissionPayoutAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
