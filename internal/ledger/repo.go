package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/repo"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// Repository persists commission ledger entries. The table is insert-only so
// no update or delete methods exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.CommissionLedgerEntry) error
	ListBySnapshotID(ctx context.Context, snapshotID uuid.UUID) ([]models.CommissionLedgerEntry, error)
	SumBySnapshotID(ctx context.Context, snapshotID uuid.UUID) ([]EntrySum, error)
}

// EntrySum is one (allocation line, entry type) aggregate.
type EntrySum struct {
	AllocationLineID *uuid.UUID
	EntryType        enums.LedgerEntryType
	Total            int64
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, entry *models.CommissionLedgerEntry) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) ListBySnapshotID(ctx context.Context, snapshotID uuid.UUID) ([]models.CommissionLedgerEntry, error) {
	var entries []models.CommissionLedgerEntry
	if err := r.DB(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumBySnapshotID(ctx context.Context, snapshotID uuid.UUID) ([]EntrySum, error) {
	var sums []EntrySum
	if err := r.DB(ctx).
		Model(&models.CommissionLedgerEntry{}).
		Select("allocation_line_id, entry_type, COALESCE(SUM(amount), 0) AS total").
		Where("snapshot_id = ?", snapshotID).
		Group("allocation_line_id, entry_type").
		Scan(&sums).Error; err != nil {
		return nil, err
	}
	return sums, nil
}
