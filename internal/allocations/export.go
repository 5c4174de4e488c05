package allocations

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/money"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
	"github.com/angelmondragon/brokerledger/pkg/outbox/payloads"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

// CSVHeader is the fixed column order of allocation exports.
const CSVHeader = "id,snapshotId,dealId,beneficiaryUserId,beneficiaryEmail,role,percent,amount,state,createdAt,exportedAt,exportBatchId"

const csvTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// MarkExportedInput names the rows to stamp. An empty BatchID is generated.
type MarkExportedInput struct {
	IDs     []string `json:"ids" validate:"required,min=1,max=1000"`
	BatchID string   `json:"batchId,omitempty" validate:"omitempty,max=100"`
}

// ExportResult partitions the requested ids.
type ExportResult struct {
	BatchID         string   `json:"batchId"`
	Requested       int      `json:"requested"`
	Found           int      `json:"found"`
	NewlyMarked     int      `json:"newlyMarked"`
	AlreadyExported int      `json:"alreadyExported"`
	InvalidState    int      `json:"invalidState"`
	Missing         int      `json:"missing"`
	InvalidIDs      []string `json:"invalidIds,omitempty"`
}

func (s *service) MarkExported(ctx context.Context, actor auth.Actor, input MarkExportedInput) (ExportResult, error) {
	if !actor.IsSystem() && !actor.HasAnyRole(enums.UserRoleAdmin, enums.UserRoleBroker) {
		return ExportResult{}, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can export allocations")
	}
	if len(input.IDs) == 0 {
		return ExportResult{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one allocation id is required")
	}
	if len(input.IDs) > MaxExportIDs {
		return ExportResult{}, pkgerrors.New(pkgerrors.CodeValidation, "too many allocation ids")
	}

	result := ExportResult{
		BatchID:   strings.TrimSpace(input.BatchID),
		Requested: len(input.IDs),
	}
	if result.BatchID == "" {
		result.BatchID = uuid.NewString()
	}

	ids := make([]uuid.UUID, 0, len(input.IDs))
	seen := make(map[uuid.UUID]struct{}, len(input.IDs))
	for _, raw := range input.IDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			result.Missing++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	exportedAt := s.now()
	bySnapshot := make(map[uuid.UUID][]string)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		result.Found = len(rows)
		result.Missing += len(ids) - len(rows)

		var eligible []uuid.UUID
		for _, row := range rows {
			switch {
			case row.IsExported():
				result.AlreadyExported++
			case row.State != enums.PayableAllocationApproved:
				result.InvalidState++
				result.InvalidIDs = append(result.InvalidIDs, row.ID.String())
			default:
				eligible = append(eligible, row.ID)
			}
		}
		if result.InvalidState > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only APPROVED allocations can be exported").WithDetails(result)
		}
		if len(eligible) == 0 {
			return nil
		}

		changed, err := repo.MarkExported(ctx, eligible, exportedAt, result.BatchID)
		if err != nil {
			return err
		}
		result.NewlyMarked = len(changed)
		result.AlreadyExported += len(eligible) - len(changed)
		if len(changed) == 0 {
			return nil
		}

		markedIDs := make([]uuid.UUID, 0, len(changed))
		for _, row := range changed {
			markedIDs = append(markedIDs, row.ID)
			bySnapshot[row.SnapshotID] = append(bySnapshot[row.SnapshotID], row.ID.String())
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAllocationsExported,
			AggregateType: enums.AggregateExportBatch,
			AggregateID:   result.BatchID,
			Actor:         outbox.ActorFromIDs(actor.UserIDPtr(), actor.RolePtr()),
			OccurredAt:    exportedAt,
			Data: payloads.AllocationsExportedEvent{
				BatchID:       result.BatchID,
				SnapshotIDs:   sortedKeys(bySnapshot),
				AllocationIDs: markedIDs,
				ExportedAt:    exportedAt,
			},
		})
	})
	if err != nil {
		return ExportResult{}, storeError(err, "mark allocations exported")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_id":         result.BatchID,
		"requested":        result.Requested,
		"newly_marked":     result.NewlyMarked,
		"already_exported": result.AlreadyExported,
		"missing":          result.Missing,
	}), "commission allocations exported")

	for _, snapshotID := range sortedKeys(bySnapshot) {
		s.audit.Record(ctx, audit.Entry{
			Actor:      actor,
			Action:     audit.ActionAllocationsExported,
			EntityType: audit.EntitySnapshot,
			EntityID:   snapshotID.String(),
			After:      map[string]any{"exportedAt": exportedAt.Format(time.RFC3339Nano), "exportBatchId": result.BatchID},
			Meta:       map[string]any{"batchId": result.BatchID, "allocationIds": bySnapshot[snapshotID]},
		})
	}
	return result, nil
}

// ExportCSV writes one page of the filtered allocations in creation order.
// Without a take the page is the largest allowed.
func (s *service) ExportCSV(ctx context.Context, filter Filter, w io.Writer) error {
	filter, err := checkFilter(filter, pagination.MaxTake)
	if err != nil {
		return err
	}
	rows, err := s.repo.ListForExport(ctx, filter)
	if err != nil {
		return storeError(err, "load allocations for export")
	}

	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')
	for _, row := range rows {
		fields := []string{
			row.ID.String(),
			row.SnapshotID.String(),
			row.DealID.String(),
			row.BeneficiaryUserID.String(),
			stringOrEmpty(row.BeneficiaryEmail),
			string(row.Role),
			money.PercentFromBasisPoints(row.PercentBp),
			strconv.FormatInt(row.Amount, 10),
			string(row.State),
			formatTime(&row.CreatedAt),
			formatTime(row.ExportedAt),
			stringOrEmpty(row.ExportBatchID),
		}
		for i, field := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(QuoteCSV(field))
		}
		b.WriteByte('\n')
	}
	_, err = io.WriteString(w, b.String())
	return err
}

// QuoteCSV quotes field when it contains a comma, a quote or a line break,
// doubling embedded quotes.
func QuoteCSV(field string) string {
	if !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(csvTimeLayout)
}
