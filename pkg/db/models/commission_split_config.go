package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// CommissionSplitConfig overrides the split percentage for a commission role.
type CommissionSplitConfig struct {
	ID              uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	Role            enums.CommissionRole `gorm:"column:role;type:text;not null;uniqueIndex" json:"role"`
	Percent         decimal.Decimal      `gorm:"column:percent;type:numeric(7,4);not null" json:"percent"`
	UpdatedByUserID *uuid.UUID           `gorm:"column:updated_by_user_id;type:uuid" json:"updatedByUserId,omitempty"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (CommissionSplitConfig) TableName() string {
	return "commission_split_configs"
}

func (c *CommissionSplitConfig) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
