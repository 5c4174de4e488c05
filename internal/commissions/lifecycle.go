package commissions

import (
	"context"
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

const snapshotEntity = "CommissionSnapshot"

// ReverseInput carries the reason and an optional cap on the debited total.
type ReverseInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Amount *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

type reversedLine struct {
	LineID uuid.UUID `json:"allocationLineId"`
	Amount int64     `json:"amount"`
}

func (s *service) ApproveSnapshot(ctx context.Context, actor auth.Actor, snapshotID uuid.UUID, override bool) (*models.CommissionSnapshot, error) {
	if !actor.HasAnyRole(enums.UserRoleAdmin, enums.UserRoleBroker) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can approve commission snapshots")
	}

	var approved *models.CommissionSnapshot
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snapshot, err := repo.FindSnapshot(ctx, snapshotID, true)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commission snapshot not found")
		}
		if snapshot.Status != enums.SnapshotStatusPendingApproval {
			return pkgerrors.StateConflict(snapshotEntity, snapshot.ID.String(), string(snapshot.Status),
				"only snapshots pending approval can be approved", string(enums.SnapshotStatusPendingApproval))
		}
		if snapshot.CreatedByUserID != nil && *snapshot.CreatedByUserID == actor.UserID && !override {
			return pkgerrors.New(pkgerrors.CodeForbidden, "the creator of a snapshot cannot approve it")
		}

		now := s.now()
		approver := actor.UserID
		if err := repo.UpdateSnapshot(ctx, snapshot.ID, map[string]any{
			"status":              enums.SnapshotStatusApproved,
			"approved_by_user_id": approver,
			"approved_at":         now,
		}); err != nil {
			return err
		}

		var pending []uuid.UUID
		for i := range snapshot.Lines {
			if snapshot.Lines[i].Status == enums.AllocationLinePending {
				pending = append(pending, snapshot.Lines[i].ID)
				snapshot.Lines[i].Status = enums.AllocationLineApproved
			}
		}
		if err := repo.UpdateLineStatus(ctx, pending, enums.AllocationLineApproved); err != nil {
			return err
		}

		snapshot.Status = enums.SnapshotStatusApproved
		snapshot.ApprovedByUserID = &approver
		snapshot.ApprovedAt = &now

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSnapshotApproved,
			AggregateType: enums.AggregateCommissionSnapshot,
			AggregateID:   snapshot.ID.String(),
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.SnapshotApprovedEvent{
				SnapshotID:       snapshot.ID,
				DealID:           snapshot.DealID,
				ApprovedByUserID: approver,
				ApprovedAt:       now,
				Override:         override,
			},
		}); err != nil {
			return err
		}
		approved = snapshot
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, "approve commission snapshot")
	}

	s.metrics.IncTransition("snapshot", string(approved.Status))
	s.logg.Info(s.logg.WithSnapshotID(ctx, approved.ID.String()), "commission snapshot approved")
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionSnapshotApproved,
		EntityType: audit.EntitySnapshot,
		EntityID:   approved.ID.String(),
		Before:     map[string]any{"status": enums.SnapshotStatusPendingApproval},
		After:      map[string]any{"status": approved.Status, "approvedByUserId": actor.UserID.String()},
		Meta:       map[string]any{"override": override},
	})
	return approved, nil
}

func (s *service) ReverseSnapshot(ctx context.Context, actor auth.Actor, snapshotID uuid.UUID, input ReverseInput) (*models.CommissionSnapshot, error) {
	if !actor.HasAnyRole(enums.UserRoleAdmin, enums.UserRoleBroker) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can reverse commission snapshots")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal reason is required")
	}
	if input.Amount != nil && *input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal amount must be positive")
	}

	var (
		result        *models.CommissionSnapshot
		previous      enums.SnapshotStatus
		reversed      []reversedLine
		reversedTotal int64
		noop          bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snapshot, err := repo.FindSnapshot(ctx, snapshotID, true)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commission snapshot not found")
		}
		result = snapshot
		if snapshot.Status == enums.SnapshotStatusReversed {
			noop = true
			return nil
		}
		previous = snapshot.Status

		ledgerTx := s.ledger.WithTx(tx)
		totals, err := ledgerTx.Totals(ctx, snapshot.ID)
		if err != nil {
			return err
		}

		var budget *int64
		if input.Amount != nil {
			remaining := *input.Amount
			budget = &remaining
		}

		var flipped []uuid.UUID
		for i := range snapshot.Lines {
			line := &snapshot.Lines[i]
			if line.Status == enums.AllocationLineReversed {
				continue
			}
			outstanding := totals.Lines[line.ID].Outstanding
			if outstanding <= 0 {
				continue
			}
			amount := outstanding
			if budget != nil {
				if *budget <= 0 {
					break
				}
				if amount > *budget {
					amount = *budget
				}
				*budget -= amount
			}

			lineID := line.ID
			if _, err := ledgerTx.RecordEntry(ctx, ledger.RecordEntryInput{
				SnapshotID:       snapshot.ID,
				AllocationLineID: &lineID,
				EntryType:        enums.LedgerEntryReversal,
				Amount:           amount,
				Currency:         snapshot.Currency,
				Memo:             reason,
				CreatedByUserID:  actor.UserIDPtr(),
			}); err != nil {
				return err
			}
			line.Status = enums.AllocationLineReversed
			flipped = append(flipped, lineID)
			reversed = append(reversed, reversedLine{LineID: lineID, Amount: amount})
			reversedTotal += amount
		}
		if err := repo.UpdateLineStatus(ctx, flipped, enums.AllocationLineReversed); err != nil {
			return err
		}

		now := s.now()
		reverser := actor.UserIDPtr()
		if err := repo.UpdateSnapshot(ctx, snapshot.ID, map[string]any{
			"status":              enums.SnapshotStatusReversed,
			"reversed_by_user_id": reverser,
			"reversed_at":         now,
			"reversal_reason":     reason,
		}); err != nil {
			return err
		}
		snapshot.Status = enums.SnapshotStatusReversed
		snapshot.ReversedByUserID = reverser
		snapshot.ReversedAt = &now
		snapshot.ReversalReason = &reason

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSnapshotReversed,
			AggregateType: enums.AggregateCommissionSnapshot,
			AggregateID:   snapshot.ID.String(),
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.SnapshotReversedEvent{
				SnapshotID:     snapshot.ID,
				DealID:         snapshot.DealID,
				Reason:         reason,
				ReversedAmount: reversedTotal,
				Currency:       snapshot.Currency,
				ReversedAt:     now,
			},
		})
	})
	if err != nil {
		return nil, s.storeError(err, "reverse commission snapshot")
	}
	if noop {
		return result, nil
	}

	s.metrics.IncTransition("snapshot", string(result.Status))
	s.metrics.AddLedger(string(enums.LedgerEntryReversal), result.Currency, reversedTotal)
	s.logg.Info(s.logg.WithFields(s.logg.WithSnapshotID(ctx, result.ID.String()), map[string]any{
		"reversed_amount": reversedTotal,
		"reversed_lines":  len(reversed),
	}), "commission snapshot reversed")
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionSnapshotReversed,
		EntityType: audit.EntitySnapshot,
		EntityID:   result.ID.String(),
		Before:     map[string]any{"status": previous},
		After:      map[string]any{"status": result.Status, "reason": reason, "reversedAmount": reversedTotal},
		Meta:       map[string]any{"lines": reversed},
	})
	return result, nil
}
