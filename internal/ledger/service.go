package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
)

// Service records commission money movements and derives balances from them.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEntry(ctx context.Context, input RecordEntryInput) (*models.CommissionLedgerEntry, error)
	Entries(ctx context.Context, snapshotID uuid.UUID) ([]models.CommissionLedgerEntry, error)
	Totals(ctx context.Context, snapshotID uuid.UUID) (Totals, error)
}

// RecordEntryInput captures the immutable data a ledger entry requires.
// Direction may be left empty and is then derived from EntryType.
type RecordEntryInput struct {
	SnapshotID       uuid.UUID             `json:"snapshotId"`
	AllocationLineID *uuid.UUID            `json:"allocationLineId,omitempty"`
	PayoutID         *uuid.UUID            `json:"payoutId,omitempty"`
	EntryType        enums.LedgerEntryType `json:"entryType"`
	Direction        enums.LedgerDirection `json:"direction"`
	Amount           int64                 `json:"amount"`
	Currency         string                `json:"currency"`
	Memo             string                `json:"memo,omitempty"`
	CreatedByUserID  *uuid.UUID            `json:"createdByUserId,omitempty"`
}

// LineTotals are the ledger aggregates for a single allocation line.
type LineTotals struct {
	Earned      int64 `json:"earned"`
	Paid        int64 `json:"paid"`
	Reversed    int64 `json:"reversed"`
	Outstanding int64 `json:"outstanding"`
}

func (l *LineTotals) add(entryType enums.LedgerEntryType, amount int64) {
	switch entryType {
	case enums.LedgerEntryEarn:
		l.Earned += amount
	case enums.LedgerEntryPayout:
		l.Paid += amount
	case enums.LedgerEntryReversal:
		l.Reversed += amount
	}
	l.Outstanding = l.Earned - l.Paid - l.Reversed
}

// Totals are snapshot-wide aggregates plus a breakdown per allocation line.
type Totals struct {
	LineTotals
	Lines map[uuid.UUID]LineTotals `json:"lines"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordEntry(ctx context.Context, input RecordEntryInput) (*models.CommissionLedgerEntry, error) {
	if input.SnapshotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot id is required")
	}
	if !input.EntryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.EntryType))
	}
	direction := input.EntryType.Direction()
	if input.Direction != "" && input.Direction != direction {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries must be %s", input.EntryType, direction))
	}
	if input.Amount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3 letter code")
	}

	entry := &models.CommissionLedgerEntry{
		SnapshotID:       input.SnapshotID,
		AllocationLineID: input.AllocationLineID,
		PayoutID:         input.PayoutID,
		EntryType:        input.EntryType,
		Direction:        direction,
		Amount:           input.Amount,
		Currency:         currency,
		CreatedByUserID:  input.CreatedByUserID,
	}
	if memo := strings.TrimSpace(input.Memo); memo != "" {
		entry.Memo = &memo
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Entries(ctx context.Context, snapshotID uuid.UUID) ([]models.CommissionLedgerEntry, error) {
	if snapshotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot id is required")
	}
	return s.repo.ListBySnapshotID(ctx, snapshotID)
}

func (s *service) Totals(ctx context.Context, snapshotID uuid.UUID) (Totals, error) {
	if snapshotID == uuid.Nil {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "snapshot id is required")
	}
	sums, err := s.repo.SumBySnapshotID(ctx, snapshotID)
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{Lines: map[uuid.UUID]LineTotals{}}
	for _, sum := range sums {
		totals.add(sum.EntryType, sum.Total)
		if sum.AllocationLineID == nil {
			continue
		}
		line := totals.Lines[*sum.AllocationLineID]
		line.add(sum.EntryType, sum.Total)
		totals.Lines[*sum.AllocationLineID] = line
	}
	return totals, nil
}
