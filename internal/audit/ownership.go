package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
)

// OwnershipResolver decides whether a non-privileged actor is related to an
// entity closely enough to read its audit trail.
type OwnershipResolver interface {
	Owns(ctx context.Context, actor auth.Actor, entityType, entityID string) (bool, error)
}

type dbOwnership struct {
	db *gorm.DB
}

// NewOwnershipResolver resolves ownership from deals, snapshots and allocations.
func NewOwnershipResolver(db *gorm.DB) OwnershipResolver {
	return &dbOwnership{db: db}
}

func (o *dbOwnership) Owns(ctx context.Context, actor auth.Actor, entityType, entityID string) (bool, error) {
	if actor.IsSystem() {
		return false, nil
	}
	id, err := uuid.Parse(entityID)
	if err != nil {
		return false, nil
	}

	db := o.db.WithContext(ctx)
	var count int64
	switch CanonicalEntityType(entityType) {
	case EntityUser:
		return id == actor.UserID, nil
	case EntityDeal:
		err = db.Model(&models.Deal{}).
			Where("id = ? AND (consultant_id = ? OR hunter_id = ?)", id, actor.UserID, actor.UserID).
			Count(&count).Error
	case EntitySnapshot:
		err = db.Model(&models.CommissionSnapshot{}).
			Joins("JOIN deals ON deals.id = commission_snapshots.deal_id").
			Where("commission_snapshots.id = ? AND (deals.consultant_id = ? OR deals.hunter_id = ?)", id, actor.UserID, actor.UserID).
			Count(&count).Error
	case EntityAllocation:
		err = db.Model(&models.CommissionPayableAllocation{}).
			Where("id = ? AND beneficiary_user_id = ?", id, actor.UserID).
			Count(&count).Error
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
