package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// User is the brokerage identity. ParentID forms the sales hierarchy.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"type:text;not null;uniqueIndex" json:"email"`
	FirstName string         `gorm:"column:first_name;not null" json:"firstName"`
	LastName  string         `gorm:"column:last_name;not null" json:"lastName"`
	Role      enums.UserRole `gorm:"column:role;type:text;not null" json:"role"`
	ParentID  *uuid.UUID     `gorm:"column:parent_id;type:uuid;index" json:"parentId,omitempty"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
