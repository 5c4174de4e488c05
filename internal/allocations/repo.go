package allocations

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

// Filter narrows allocation listings and exports.
type Filter struct {
	SnapshotID *uuid.UUID
	State      enums.PayableAllocationState
	BatchID    string
	Page       pagination.Params
}

// ExportRow is an allocation joined with its beneficiary's email.
type ExportRow struct {
	models.CommissionPayableAllocation
	BeneficiaryEmail *string
}

// Repository persists payable allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindSnapshot(ctx context.Context, id uuid.UUID) (*models.CommissionSnapshot, error)
	FindDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error)

	Find(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionPayableAllocation, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CommissionPayableAllocation, error)
	ListBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]models.CommissionPayableAllocation, error)
	Create(ctx context.Context, rows []models.CommissionPayableAllocation) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	MarkExported(ctx context.Context, ids []uuid.UUID, at time.Time, batchID string) ([]models.CommissionPayableAllocation, error)
	List(ctx context.Context, filter Filter) ([]models.CommissionPayableAllocation, int64, error)
	ListForExport(ctx context.Context, filter Filter) ([]ExportRow, error)
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

func (r *repository) FindSnapshot(ctx context.Context, id uuid.UUID) (*models.CommissionSnapshot, error) {
	var snapshot models.CommissionSnapshot
	err := r.DB(ctx).Where("id = ?", id).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *repository) FindDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	err := r.DB(ctx).Where("id = ?", id).Take(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *repository) Find(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionPayableAllocation, error) {
	query := r.DB(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.CommissionPayableAllocation
	err := query.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CommissionPayableAllocation, error) {
	var rows []models.CommissionPayableAllocation
	if len(ids) == 0 {
		return rows, nil
	}
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]models.CommissionPayableAllocation, error) {
	var rows []models.CommissionPayableAllocation
	err := r.DB(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Create(ctx context.Context, rows []models.CommissionPayableAllocation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.DB(ctx).Model(&models.CommissionPayableAllocation{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// MarkExported stamps the rows that have not been exported yet and returns
// the rows this call changed. Rows another export stamped first are left out.
func (r *repository) MarkExported(ctx context.Context, ids []uuid.UUID, at time.Time, batchID string) ([]models.CommissionPayableAllocation, error) {
	var changed []models.CommissionPayableAllocation
	if len(ids) == 0 {
		return changed, nil
	}
	res := r.DB(ctx).Model(&models.CommissionPayableAllocation{}).
		Where("id IN ?", ids).
		Where("exported_at IS NULL").
		Updates(map[string]any{
			"exported_at":     at,
			"export_batch_id": batchID,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return changed, res.Error
	}
	err := r.DB(ctx).
		Where("id IN ?", ids).
		Where("export_batch_id = ? AND exported_at = ?", batchID, at).
		Order("created_at ASC").
		Order("id ASC").
		Find(&changed).Error
	return changed, err
}

func (r *repository) filtered(ctx context.Context, filter Filter) *gorm.DB {
	query := r.DB(ctx).Model(&models.CommissionPayableAllocation{})
	if filter.SnapshotID != nil {
		query = query.Where("commission_payable_allocations.snapshot_id = ?", *filter.SnapshotID)
	}
	if filter.State != "" {
		query = query.Where("commission_payable_allocations.state = ?", filter.State)
	}
	if filter.BatchID != "" {
		query = query.Where("commission_payable_allocations.export_batch_id = ?", filter.BatchID)
	}
	return query
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.CommissionPayableAllocation, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CommissionPayableAllocation
	err := query.Session(&gorm.Session{}).
		Order("created_at ASC").
		Order("id ASC").
		Scopes(repo.Paginate(filter.Page)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) ListForExport(ctx context.Context, filter Filter) ([]ExportRow, error) {
	var rows []ExportRow
	err := r.filtered(ctx, filter).
		Select("commission_payable_allocations.*, users.email AS beneficiary_email").
		Joins("LEFT JOIN users ON users.id = commission_payable_allocations.beneficiary_user_id").
		Order("commission_payable_allocations.created_at ASC").
		Order("commission_payable_allocations.id ASC").
		Scopes(repo.Paginate(filter.Page)).
		Scan(&rows).Error
	return rows, err
}
