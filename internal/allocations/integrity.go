package allocations

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
)

// Epsilon is the tolerated difference, in minor units, of integrity sums.
const Epsilon int64 = 0

// IntegrityResult is a read-only audit of one snapshot. Findings are
// reported, never raised.
type IntegrityResult struct {
	SnapshotID       uuid.UUID `json:"snapshotId"`
	PolicySumOK      bool      `json:"policySumOk"`
	AllocationSumOK  bool      `json:"allocationSumOk"`
	ExportBatchOK    bool      `json:"exportBatchOk"`
	OK               bool      `json:"ok"`
	PoolAmount       int64     `json:"poolAmount"`
	RoleAmountsTotal int64     `json:"roleAmountsTotal"`
	ConsultantAmount int64     `json:"consultantAmount"`
	AllocationTotal  int64     `json:"allocationTotal"`
	Allocations      int       `json:"allocations"`
}

func within(a, b int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= Epsilon
}

func (s *service) ValidateSnapshotIntegrity(ctx context.Context, snapshotID uuid.UUID) (IntegrityResult, error) {
	snapshot, err := s.repo.FindSnapshot(ctx, snapshotID)
	if err != nil {
		return IntegrityResult{}, storeError(err, "load commission snapshot")
	}
	if snapshot == nil {
		return IntegrityResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "commission snapshot not found")
	}
	rows, err := s.repo.ListBySnapshot(ctx, snapshot.ID)
	if err != nil {
		return IntegrityResult{}, storeError(err, "load allocations")
	}

	res := IntegrityResult{
		SnapshotID:       snapshot.ID,
		PoolAmount:       snapshot.PoolAmount,
		RoleAmountsTotal: snapshot.RoleAmountsTotal(),
		ConsultantAmount: snapshot.ConsultantAmount,
		Allocations:      len(rows),
		ExportBatchOK:    true,
	}
	for _, row := range rows {
		if row.State != enums.PayableAllocationVoid {
			res.AllocationTotal += row.Amount
		}
		if row.ExportedAt != nil && (row.ExportBatchID == nil || *row.ExportBatchID == "") {
			res.ExportBatchOK = false
		}
	}
	res.PolicySumOK = within(res.RoleAmountsTotal, res.PoolAmount)
	res.AllocationSumOK = within(res.AllocationTotal, res.ConsultantAmount)
	res.OK = res.PolicySumOK && res.AllocationSumOK && res.ExportBatchOK
	return res, nil
}
