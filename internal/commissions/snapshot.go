package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/ledger"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
	"github.com/angelmondragon/brokerledger/pkg/outbox/payloads"
)

// CreateSnapshotInput identifies the won deal to snapshot. An empty
// IdempotencyKey defaults to WonKey of the deal.
type CreateSnapshotInput struct {
	DealID         uuid.UUID `json:"dealId" validate:"required"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty" validate:"omitempty,max=200"`
}

// SnapshotResult reports whether the call created the snapshot or found it
// under the same idempotency key.
type SnapshotResult struct {
	Snapshot *models.CommissionSnapshot `json:"snapshot"`
	Created  bool                       `json:"created"`
}

// WonKey is the default idempotency key of a deal won at wonAt.
func WonKey(dealID uuid.UUID, wonAt time.Time) string {
	return fmt.Sprintf("deal:%s:won:%d", dealID, wonAt.UnixMilli())
}

type snapshotMeta struct {
	Participants    map[enums.CommissionRole]*uuid.UUID `json:"participants"`
	FoldedWeights   map[enums.CommissionRole]int64      `json:"foldedWeights"`
	Remainder       int64                               `json:"remainder"`
	ConsultantChain []uuid.UUID                         `json:"consultantUpline,omitempty"`
}

func (s *service) CreateSnapshot(ctx context.Context, actor auth.Actor, input CreateSnapshotInput) (SnapshotResult, error) {
	if !actor.IsSystem() && !actor.Role.IsPrivileged() {
		return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can create commission snapshots")
	}

	var result SnapshotResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.CreateSnapshotTx(ctx, tx, actor, input)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.resolveSnapshotRace(ctx, actor, input)
		}
		return SnapshotResult{}, s.storeError(err, "create commission snapshot")
	}

	s.RecordSnapshotCreated(ctx, actor, result)
	return result, nil
}

// resolveSnapshotRace re-reads the winner of a concurrent insert under the
// same key.
func (s *service) resolveSnapshotRace(ctx context.Context, actor auth.Actor, input CreateSnapshotInput) (SnapshotResult, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		deal, err := s.repo.FindDeal(ctx, input.DealID)
		if err != nil {
			return SnapshotResult{}, s.storeError(err, "load deal")
		}
		if deal != nil && deal.WonAt != nil {
			key = WonKey(deal.ID, *deal.WonAt)
		}
	}
	if key != "" {
		existing, err := s.repo.FindSnapshotByKey(ctx, key)
		if err != nil {
			return SnapshotResult{}, s.storeError(err, "load commission snapshot")
		}
		if existing != nil {
			return SnapshotResult{Snapshot: existing}, nil
		}
	}
	return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeConflict, "a concurrent snapshot was created for this deal; retry")
}

func (s *service) CreateSnapshotTx(ctx context.Context, tx *gorm.DB, actor auth.Actor, input CreateSnapshotInput) (SnapshotResult, error) {
	if tx == nil {
		return SnapshotResult{}, fmt.Errorf("transaction required")
	}
	if input.DealID == uuid.Nil {
		return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeValidation, "deal id is required")
	}
	repo := s.repo.WithTx(tx)

	deal, err := repo.FindDeal(ctx, input.DealID)
	if err != nil {
		return SnapshotResult{}, err
	}
	if deal == nil {
		return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		if deal.WonAt == nil {
			return SnapshotResult{}, pkgerrors.StateConflict("Deal", deal.ID.String(), string(deal.Status), "deal has not been won", string(enums.DealStatusWon))
		}
		key = WonKey(deal.ID, *deal.WonAt)
	}
	existing, err := repo.FindSnapshotByKey(ctx, key)
	if err != nil {
		return SnapshotResult{}, err
	}
	if existing != nil {
		return SnapshotResult{Snapshot: existing}, nil
	}

	if deal.Status != enums.DealStatusWon {
		return SnapshotResult{}, pkgerrors.StateConflict("Deal", deal.ID.String(), string(deal.Status), "only WON deals can be snapshotted", string(enums.DealStatusWon))
	}
	if deal.ListingPrice == nil {
		return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeValidation, "base amount missing")
	}
	if *deal.ListingPrice < 0 {
		return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeValidation, "base amount must not be negative")
	}

	at := s.now()
	if deal.WonAt != nil {
		at = *deal.WonAt
	}
	policy, err := s.resolvePolicy(ctx, repo, at)
	if err != nil {
		return SnapshotResult{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(deal.Currency))
	if currency == "" {
		currency = policy.Currency
	}
	if policy.Method == enums.CalculationMethodFixed && currency != policy.Currency {
		return SnapshotResult{}, pkgerrors.New(pkgerrors.CodeValidation, "fixed commission currency does not match the deal currency")
	}

	pool, err := ComputePool(*policy, *deal.ListingPrice)
	if err != nil {
		return SnapshotResult{}, err
	}
	participants := ParticipantsFromDeal(*deal)
	plan, err := PlanAllocations(*policy, pool, participants)
	if err != nil {
		return SnapshotResult{}, err
	}

	version, err := repo.MaxSnapshotVersion(ctx, deal.ID)
	if err != nil {
		return SnapshotResult{}, err
	}
	policyJSON, err := audit.StableJSON(policy)
	if err != nil {
		return SnapshotResult{}, err
	}
	metaJSON, err := audit.StableJSON(s.buildMeta(ctx, tx, *policy, participants, plan))
	if err != nil {
		return SnapshotResult{}, err
	}

	snapshot := &models.CommissionSnapshot{
		DealID:           deal.ID,
		Version:          version + 1,
		PolicyVersionID:  policy.ID,
		BaseAmount:       *deal.ListingPrice,
		PoolAmount:       pool,
		Currency:         currency,
		HunterAmount:     plan.AmountFor(enums.CommissionRoleHunter),
		ConsultantAmount: plan.AmountFor(enums.CommissionRoleConsultant),
		BrokerAmount:     plan.AmountFor(enums.CommissionRoleBroker),
		SystemAmount:     plan.AmountFor(enums.CommissionRoleSystem),
		PolicySnapshot:   policyJSON,
		Meta:             &metaJSON,
		Status:           enums.SnapshotStatusPendingApproval,
		IdempotencyKey:   key,
		CreatedByUserID:  actor.UserIDPtr(),
	}
	for i, line := range plan.Lines {
		snapshot.Lines = append(snapshot.Lines, models.CommissionAllocationLine{
			Position:          i,
			Role:              line.Role,
			BeneficiaryUserID: line.BeneficiaryUserID,
			BasisPoints:       line.BasisPoints,
			Amount:            line.Amount,
			AbsorbsRemainder:  line.AbsorbsRemainder,
			Status:            enums.AllocationLinePending,
		})
	}
	if snapshot.RoleAmountsTotal() != snapshot.PoolAmount {
		return SnapshotResult{}, pkgerrors.Invariant("pool_sum", snapshot.PoolAmount, snapshot.RoleAmountsTotal(),
			"role amounts do not sum to the commission pool")
	}

	if err := repo.CreateSnapshot(ctx, snapshot); err != nil {
		return SnapshotResult{}, err
	}

	ledgerTx := s.ledger.WithTx(tx)
	for i := range snapshot.Lines {
		line := snapshot.Lines[i]
		if _, err := ledgerTx.RecordEntry(ctx, ledger.RecordEntryInput{
			SnapshotID:       snapshot.ID,
			AllocationLineID: &line.ID,
			EntryType:        enums.LedgerEntryEarn,
			Amount:           line.Amount,
			Currency:         currency,
			Memo:             fmt.Sprintf("%s share of deal %s", line.Role, deal.ID),
			CreatedByUserID:  actor.UserIDPtr(),
		}); err != nil {
			return SnapshotResult{}, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSnapshotCreated,
		AggregateType: enums.AggregateCommissionSnapshot,
		AggregateID:   snapshot.ID.String(),
		Actor:         actorRef(actor),
		OccurredAt:    at,
		Data: payloads.SnapshotCreatedEvent{
			SnapshotID:       snapshot.ID,
			DealID:           snapshot.DealID,
			Version:          snapshot.Version,
			PolicyVersionID:  snapshot.PolicyVersionID,
			BaseAmount:       snapshot.BaseAmount,
			PoolAmount:       snapshot.PoolAmount,
			Currency:         snapshot.Currency,
			HunterAmount:     snapshot.HunterAmount,
			ConsultantAmount: snapshot.ConsultantAmount,
			BrokerAmount:     snapshot.BrokerAmount,
			SystemAmount:     snapshot.SystemAmount,
		},
	}); err != nil {
		return SnapshotResult{}, err
	}

	return SnapshotResult{Snapshot: snapshot, Created: true}, nil
}

// buildMeta captures the participants and the consultant's upline at
// creation time. Upline lookups are best effort.
func (s *service) buildMeta(ctx context.Context, tx *gorm.DB, policy models.CommissionPolicyVersion, participants Participants, plan Plan) snapshotMeta {
	meta := snapshotMeta{
		Participants: map[enums.CommissionRole]*uuid.UUID{
			enums.CommissionRoleHunter:     participants.Hunter,
			enums.CommissionRoleConsultant: participants.Consultant,
			enums.CommissionRoleBroker:     participants.Broker,
		},
		FoldedWeights: FoldWeights(policy, participants),
		Remainder:     plan.Remainder,
	}
	if s.hierarchy == nil || participants.Consultant == nil {
		return meta
	}
	upline, err := s.hierarchy.WithTx(tx).GetUpline(ctx, *participants.Consultant, s.cfg.HierarchyDepth)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "consultant_id", participants.Consultant.String()), "consultant upline unavailable for snapshot trace")
		return meta
	}
	for _, entry := range upline {
		meta.ConsultantChain = append(meta.ConsultantChain, entry.UserID)
	}
	return meta
}

// RecordSnapshotCreated writes the audit entry and metrics for a newly
// created snapshot. Results that reused an existing snapshot are ignored.
func (s *service) RecordSnapshotCreated(ctx context.Context, actor auth.Actor, result SnapshotResult) {
	if !result.Created || result.Snapshot == nil {
		return
	}
	snapshot := result.Snapshot
	s.metrics.IncTransition("snapshot", string(snapshot.Status))
	for _, line := range snapshot.Lines {
		s.metrics.AddLedger(string(enums.LedgerEntryEarn), snapshot.Currency, line.Amount)
	}

	logCtx := s.logg.WithSnapshotID(ctx, snapshot.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"deal_id":     snapshot.DealID.String(),
		"version":     snapshot.Version,
		"pool_amount": snapshot.PoolAmount,
	}), "commission snapshot created")

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionSnapshotCreated,
		EntityType: audit.EntitySnapshot,
		EntityID:   snapshot.ID.String(),
		After: map[string]any{
			"dealId":           snapshot.DealID.String(),
			"version":          snapshot.Version,
			"status":           snapshot.Status,
			"baseAmount":       snapshot.BaseAmount,
			"poolAmount":       snapshot.PoolAmount,
			"currency":         snapshot.Currency,
			"hunterAmount":     snapshot.HunterAmount,
			"consultantAmount": snapshot.ConsultantAmount,
			"brokerAmount":     snapshot.BrokerAmount,
			"systemAmount":     snapshot.SystemAmount,
		},
		Meta: map[string]any{"idempotencyKey": snapshot.IdempotencyKey, "policyVersionId": snapshot.PolicyVersionID.String()},
	})
}
