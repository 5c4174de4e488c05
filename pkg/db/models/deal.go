package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// Deal is the read model of a brokerage deal. ListingPrice is in minor units.
type Deal struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string           `gorm:"column:title;not null;default:''" json:"title"`
	Status       enums.DealStatus `gorm:"column:status;type:text;not null" json:"status"`
	ConsultantID *uuid.UUID       `gorm:"column:consultant_id;type:uuid;index" json:"consultantId,omitempty"`
	HunterID     *uuid.UUID       `gorm:"column:hunter_id;type:uuid" json:"hunterId,omitempty"`
	BrokerID     *uuid.UUID       `gorm:"column:broker_id;type:uuid" json:"brokerId,omitempty"`
	ListingPrice *int64           `gorm:"column:listing_price" json:"listingPrice,omitempty"`
	Currency     string           `gorm:"column:currency;type:text;not null" json:"currency"`
	WonAt        *time.Time       `gorm:"column:won_at" json:"wonAt,omitempty"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (d *Deal) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
