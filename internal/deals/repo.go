package deals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/brokerledger/internal/repo"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

// Filter narrows deal listings. ParticipantID matches any deal role.
type Filter struct {
	Status        enums.DealStatus
	ParticipantID *uuid.UUID
	Page          pagination.Params
}

// Repository reads deals and records the WON transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Deal, error)
	List(ctx context.Context, filter Filter) ([]models.Deal, int64, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
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

func (r *repository) Find(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Deal, error) {
	query := r.DB(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var deal models.Deal
	err := query.Where("id = ?", id).Take(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.Deal, int64, error) {
	query := r.DB(ctx).Model(&models.Deal{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ParticipantID != nil {
		id := *filter.ParticipantID
		query = query.Where("consultant_id = ? OR hunter_id = ? OR broker_id = ?", id, id, id)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Deal
	err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Scopes(repo.Paginate(filter.Page)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.DB(ctx).Model(&models.Deal{}).Where("id = ?", id).Updates(fields).Error
}
