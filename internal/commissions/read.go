package commissions

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/internal/ledger"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

// SnapshotDetail is a snapshot with its lines and ledger-derived balances.
type SnapshotDetail struct {
	*models.CommissionSnapshot
	Totals ledger.Totals `json:"totals"`
}

func (s *service) GetSnapshot(ctx context.Context, snapshotID uuid.UUID) (*SnapshotDetail, error) {
	snapshot, err := s.repo.FindSnapshot(ctx, snapshotID, false)
	if err != nil {
		return nil, s.storeError(err, "load commission snapshot")
	}
	if snapshot == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission snapshot not found")
	}
	totals, err := s.ledger.Totals(ctx, snapshot.ID)
	if err != nil {
		return nil, s.storeError(err, "load ledger totals")
	}
	return &SnapshotDetail{CommissionSnapshot: snapshot, Totals: totals}, nil
}

func (s *service) ListSnapshots(ctx context.Context, filter SnapshotFilter) (pagination.Page[models.CommissionSnapshot], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return pagination.Page[models.CommissionSnapshot]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid snapshot status")
	}
	if filter.Page.Take > pagination.MaxTake {
		return pagination.Page[models.CommissionSnapshot]{}, pkgerrors.New(pkgerrors.CodeValidation, "take must be at most 100")
	}
	filter.Page = filter.Page.Normalize(pagination.DefaultTake)

	rows, total, err := s.repo.ListSnapshots(ctx, filter)
	if err != nil {
		return pagination.Page[models.CommissionSnapshot]{}, s.storeError(err, "list commission snapshots")
	}
	return pagination.Page[models.CommissionSnapshot]{
		Items: rows,
		Total: total,
		Take:  filter.Page.Take,
		Skip:  filter.Page.Skip,
	}, nil
}
