package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// CommissionPolicyVersion is an immutable, time boxed commission configuration.
type CommissionPolicyVersion struct {
	ID              uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	Version         int                     `gorm:"column:version;not null;uniqueIndex" json:"version"`
	Method          enums.CalculationMethod `gorm:"column:method;type:text;not null" json:"method"`
	RateBp          int64                   `gorm:"column:rate_bp;not null" json:"rateBp"`
	FixedAmount     int64                   `gorm:"column:fixed_amount;not null;default:0" json:"fixedAmount"`
	HunterBp        int64                   `gorm:"column:hunter_bp;not null" json:"hunterBp"`
	ConsultantBp    int64                   `gorm:"column:consultant_bp;not null" json:"consultantBp"`
	BrokerBp        int64                   `gorm:"column:broker_bp;not null" json:"brokerBp"`
	SystemBp        int64                   `gorm:"column:system_bp;not null" json:"systemBp"`
	Rounding        enums.RoundingRule      `gorm:"column:rounding;type:text;not null" json:"rounding"`
	Currency        string                  `gorm:"column:currency;type:text;not null" json:"currency"`
	EffectiveFrom   time.Time               `gorm:"column:effective_from;not null;index" json:"effectiveFrom"`
	EffectiveTo     *time.Time              `gorm:"column:effective_to" json:"effectiveTo,omitempty"`
	IsActive        bool                    `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedByUserID *uuid.UUID              `gorm:"column:created_by_user_id;type:uuid" json:"createdByUserId,omitempty"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (CommissionPolicyVersion) TableName() string {
	return "commission_policy_versions"
}

func (p *CommissionPolicyVersion) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// WeightFor returns the split basis points the policy assigns to role.
func (p CommissionPolicyVersion) WeightFor(role enums.CommissionRole) int64 {
	switch role {
	case enums.CommissionRoleHunter:
		return p.HunterBp
	case enums.CommissionRoleConsultant:
		return p.ConsultantBp
	case enums.CommissionRoleBroker:
		return p.BrokerBp
	case enums.CommissionRoleSystem:
		return p.SystemBp
	}
	return 0
}

// Covers reports whether at falls inside [EffectiveFrom, EffectiveTo).
func (p CommissionPolicyVersion) Covers(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveTo == nil || at.Before(*p.EffectiveTo)
}
