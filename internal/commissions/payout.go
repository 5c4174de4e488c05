package commissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/ledger"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
	"github.com/angelmondragon/brokerledger/pkg/outbox/payloads"
)

// PayoutLineInput draws Amount from one allocation line.
type PayoutLineInput struct {
	AllocationLineID uuid.UUID `json:"allocationLineId" validate:"required"`
	Amount           int64     `json:"amount" validate:"gt=0"`
}

// CreatePayoutInput groups disbursements. Override lets an admin pay more
// than a line's remaining balance.
type CreatePayoutInput struct {
	Lines     []PayoutLineInput `json:"lines" validate:"required,min=1,dive"`
	Reference string            `json:"reference,omitempty" validate:"omitempty,max=200"`
	Override  bool              `json:"override"`
}

// RemainingDetails explains an over-payment rejection.
type RemainingDetails struct {
	AllocationLineID string `json:"allocationLineId"`
	Remaining        int64  `json:"remaining"`
	Requested        int64  `json:"requested"`
}

func (s *service) CreatePayout(ctx context.Context, actor auth.Actor, input CreatePayoutInput) (*models.CommissionPayout, error) {
	if !actor.HasAnyRole(enums.UserRoleAdmin, enums.UserRoleBroker) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can create payouts")
	}
	if input.Override && actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can override payout balances")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one payout line is required")
	}
	ids := make([]uuid.UUID, 0, len(input.Lines))
	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for _, line := range input.Lines {
		if line.AllocationLineID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation line id is required")
		}
		if line.Amount <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amounts must be positive")
		}
		if _, dup := seen[line.AllocationLineID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each allocation line may appear once per payout")
		}
		seen[line.AllocationLineID] = struct{}{}
		ids = append(ids, line.AllocationLineID)
	}

	var (
		payout *models.CommissionPayout
		events []payloads.PayoutLine
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lines, err := repo.FindLines(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]models.CommissionAllocationLine, len(lines))
		for _, line := range lines {
			byID[line.ID] = line
		}

		currency := ""
		for _, id := range ids {
			line, ok := byID[id]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "allocation line not found")
			}
			if !line.Status.IsPayable() {
				return pkgerrors.StateConflict("CommissionAllocationLine", line.ID.String(), string(line.Status),
					"only approved or partially paid allocations can be paid out",
					string(enums.AllocationLineApproved), string(enums.AllocationLinePartial))
			}
			snapshot, err := repo.FindSnapshot(ctx, line.SnapshotID, false)
			if err != nil {
				return err
			}
			if snapshot == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "commission snapshot not found")
			}
			if currency == "" {
				currency = snapshot.Currency
			} else if currency != snapshot.Currency {
				return pkgerrors.New(pkgerrors.CodeValidation, "payout lines must share one currency")
			}
		}

		paid, err := repo.PaidByLine(ctx, ids)
		if err != nil {
			return err
		}

		payout = &models.CommissionPayout{
			Currency:        currency,
			Override:        input.Override,
			CreatedByUserID: actor.UserIDPtr(),
		}
		if ref := strings.TrimSpace(input.Reference); ref != "" {
			payout.Reference = &ref
		}
		statusUpdates := map[enums.AllocationLineStatus][]uuid.UUID{}
		for _, req := range input.Lines {
			line := byID[req.AllocationLineID]
			remaining := line.Amount - paid[line.ID]
			if req.Amount > remaining && !input.Override {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("payout exceeds the remaining balance of allocation %s", line.ID)).
					WithDetails(RemainingDetails{AllocationLineID: line.ID.String(), Remaining: remaining, Requested: req.Amount})
			}
			status := enums.AllocationLinePartial
			if remaining-req.Amount <= 0 {
				status = enums.AllocationLinePaid
			}
			statusUpdates[status] = append(statusUpdates[status], line.ID)

			payout.TotalAmount += req.Amount
			payout.Allocations = append(payout.Allocations, models.CommissionPayoutAllocation{
				AllocationLineID: line.ID,
				Amount:           req.Amount,
			})
			events = append(events, payloads.PayoutLine{AllocationLineID: line.ID, Amount: req.Amount, Status: status})
		}

		if err := repo.CreatePayout(ctx, payout); err != nil {
			return err
		}

		ledgerTx := s.ledger.WithTx(tx)
		for _, alloc := range payout.Allocations {
			lineID := alloc.AllocationLineID
			if _, err := ledgerTx.RecordEntry(ctx, ledger.RecordEntryInput{
				SnapshotID:       byID[lineID].SnapshotID,
				AllocationLineID: &lineID,
				PayoutID:         &payout.ID,
				EntryType:        enums.LedgerEntryPayout,
				Amount:           alloc.Amount,
				Currency:         currency,
				CreatedByUserID:  actor.UserIDPtr(),
			}); err != nil {
				return err
			}
		}
		for _, status := range []enums.AllocationLineStatus{enums.AllocationLinePartial, enums.AllocationLinePaid} {
			if err := repo.UpdateLineStatus(ctx, statusUpdates[status], status); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCreated,
			AggregateType: enums.AggregateCommissionPayout,
			AggregateID:   payout.ID.String(),
			Actor:         actorRef(actor),
			Data: payloads.PayoutCreatedEvent{
				PayoutID:    payout.ID,
				Currency:    payout.Currency,
				TotalAmount: payout.TotalAmount,
				Override:    payout.Override,
				Lines:       events,
			},
		})
	})
	if err != nil {
		return nil, s.storeError(err, "create payout")
	}

	s.metrics.IncTransition("payout", "CREATED")
	s.metrics.AddLedger(string(enums.LedgerEntryPayout), payout.Currency, payout.TotalAmount)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payout_id":    payout.ID.String(),
		"total_amount": payout.TotalAmount,
		"lines":        len(payout.Allocations),
	}), "commission payout created")
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionPayoutCreated,
		EntityType: audit.EntityPayout,
		EntityID:   payout.ID.String(),
		After: map[string]any{
			"currency":    payout.Currency,
			"totalAmount": payout.TotalAmount,
			"lines":       events,
		},
		Meta: map[string]any{"override": payout.Override},
	})
	return payout, nil
}
