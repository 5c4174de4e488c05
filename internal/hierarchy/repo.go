package hierarchy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/brokerledger/internal/repo"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// Repository reads and writes parent links and split overrides.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetParent(ctx context.Context, child uuid.UUID, parent *uuid.UUID) error
	FindSplit(ctx context.Context, role enums.CommissionRole) (*models.CommissionSplitConfig, error)
	UpsertSplit(ctx context.Context, cfg *models.CommissionSplitConfig) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// FindUser returns nil without error when the user does not exist.
func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.DB(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) SetParent(ctx context.Context, child uuid.UUID, parent *uuid.UUID) error {
	return r.DB(ctx).Model(&models.User{}).
		Where("id = ?", child).
		Update("parent_id", parent).Error
}

func (r *repository) FindSplit(ctx context.Context, role enums.CommissionRole) (*models.CommissionSplitConfig, error) {
	var cfg models.CommissionSplitConfig
	err := r.DB(ctx).Where("role = ?", role).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) UpsertSplit(ctx context.Context, cfg *models.CommissionSplitConfig) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"percent", "updated_by_user_id", "updated_at"}),
	}).Create(cfg).Error
}

