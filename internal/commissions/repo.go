package commissions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/brokerledger/internal/repo"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

// SnapshotFilter narrows snapshot listings.
type SnapshotFilter struct {
	DealID *uuid.UUID
	Status enums.SnapshotStatus
	Page   pagination.Params
}

// Repository persists policies, snapshots, allocation lines and payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error)

	FindPolicyAt(ctx context.Context, at time.Time) (*models.CommissionPolicyVersion, error)
	MaxPolicyVersion(ctx context.Context) (int, error)
	CreatePolicy(ctx context.Context, policy *models.CommissionPolicyVersion) error

	FindSnapshot(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionSnapshot, error)
	FindSnapshotByKey(ctx context.Context, key string) (*models.CommissionSnapshot, error)
	MaxSnapshotVersion(ctx context.Context, dealID uuid.UUID) (int, error)
	CreateSnapshot(ctx context.Context, snapshot *models.CommissionSnapshot) error
	UpdateSnapshot(ctx context.Context, id uuid.UUID, fields map[string]any) error
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.CommissionSnapshot, int64, error)
	ListTouchedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)

	FindLines(ctx context.Context, ids []uuid.UUID) ([]models.CommissionAllocationLine, error)
	UpdateLineStatus(ctx context.Context, ids []uuid.UUID, status enums.AllocationLineStatus) error
	PaidByLine(ctx context.Context, lineIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	CreatePayout(ctx context.Context, payout *models.CommissionPayout) error
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

func takeOrNil[T any](err error, row *T) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *repository) FindDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	err := r.DB(ctx).Where("id = ?", id).Take(&deal).Error
	return takeOrNil(err, &deal)
}

// FindPolicyAt returns the newest active version whose window contains at.
func (r *repository) FindPolicyAt(ctx context.Context, at time.Time) (*models.CommissionPolicyVersion, error) {
	var policy models.CommissionPolicyVersion
	err := r.DB(ctx).
		Where("is_active = ?", true).
		Where("effective_from <= ?", at).
		Where("effective_to IS NULL OR effective_to > ?", at).
		Order("effective_from DESC").
		Order("version DESC").
		Take(&policy).Error
	return takeOrNil(err, &policy)
}

func (r *repository) MaxPolicyVersion(ctx context.Context) (int, error) {
	var max int
	err := r.DB(ctx).Model(&models.CommissionPolicyVersion{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error
	return max, err
}

func (r *repository) CreatePolicy(ctx context.Context, policy *models.CommissionPolicyVersion) error {
	return r.DB(ctx).Create(policy).Error
}

func (r *repository) FindSnapshot(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionSnapshot, error) {
	query := r.DB(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var snapshot models.CommissionSnapshot
	err := query.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		Take(&snapshot).Error
	return takeOrNil(err, &snapshot)
}

func (r *repository) FindSnapshotByKey(ctx context.Context, key string) (*models.CommissionSnapshot, error) {
	var snapshot models.CommissionSnapshot
	err := r.DB(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("idempotency_key = ?", key).
		Take(&snapshot).Error
	return takeOrNil(err, &snapshot)
}

func (r *repository) MaxSnapshotVersion(ctx context.Context, dealID uuid.UUID) (int, error) {
	var max int
	err := r.DB(ctx).Model(&models.CommissionSnapshot{}).
		Where("deal_id = ?", dealID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error
	return max, err
}

// CreateSnapshot inserts the snapshot together with its allocation lines.
func (r *repository) CreateSnapshot(ctx context.Context, snapshot *models.CommissionSnapshot) error {
	return r.DB(ctx).Create(snapshot).Error
}

func (r *repository) UpdateSnapshot(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.DB(ctx).Model(&models.CommissionSnapshot{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.CommissionSnapshot, int64, error) {
	query := r.DB(ctx).Model(&models.CommissionSnapshot{})
	if filter.DealID != nil {
		query = query.Where("deal_id = ?", *filter.DealID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CommissionSnapshot
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

// ListTouchedSince returns ids of snapshots created or updated at or after
// since, most recent first.
func (r *repository) ListTouchedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.DB(ctx).Model(&models.CommissionSnapshot{}).
		Where("updated_at >= ? OR created_at >= ?", since, since).
		Order("updated_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) FindLines(ctx context.Context, ids []uuid.UUID) ([]models.CommissionAllocationLine, error) {
	var lines []models.CommissionAllocationLine
	if len(ids) == 0 {
		return lines, nil
	}
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&lines).Error
	return lines, err
}

func (r *repository) UpdateLineStatus(ctx context.Context, ids []uuid.UUID, status enums.AllocationLineStatus) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.CommissionAllocationLine{}).
		Where("id IN ?", ids).
		Update("status", status).Error
}

// PaidByLine sums prior payout allocations per line.
func (r *repository) PaidByLine(ctx context.Context, lineIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	paid := make(map[uuid.UUID]int64, len(lineIDs))
	if len(lineIDs) == 0 {
		return paid, nil
	}
	var rows []struct {
		AllocationLineID uuid.UUID
		Total            int64
	}
	err := r.DB(ctx).Model(&models.CommissionPayoutAllocation{}).
		Select("allocation_line_id, COALESCE(SUM(amount), 0) AS total").
		Where("allocation_line_id IN ?", lineIDs).
		Group("allocation_line_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		paid[row.AllocationLineID] = row.Total
	}
	return paid, nil
}

// CreatePayout inserts the payout together with its allocation links.
func (r *repository) CreatePayout(ctx context.Context, payout *models.CommissionPayout) error {
	return r.DB(ctx).Create(payout).Error
}
