package allocations

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
	"github.com/angelmondragon/brokerledger/pkg/money"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

const (
	allocationEntity = "CommissionAllocation"
	// MaxExportIDs bounds a single markExported call.
	MaxExportIDs = 1000
)

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GenerateResult reports the rows for a snapshot and whether this call
// created them.
type GenerateResult struct {
	Allocations []models.CommissionPayableAllocation `json:"allocations"`
	Created     bool                                 `json:"created"`
}

// Service drives payable allocations through approval, voiding and export.
type Service interface {
	Generate(ctx context.Context, actor auth.Actor, snapshotID uuid.UUID) (GenerateResult, error)
	Approve(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.CommissionPayableAllocation, error)
	Void(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.CommissionPayableAllocation, error)
	MarkExported(ctx context.Context, actor auth.Actor, input MarkExportedInput) (ExportResult, error)
	ExportCSV(ctx context.Context, filter Filter, w io.Writer) error
	ValidateSnapshotIntegrity(ctx context.Context, snapshotID uuid.UUID) (IntegrityResult, error)
	List(ctx context.Context, filter Filter) (pagination.Page[models.CommissionPayableAllocation], error)
}

// ServiceParams groups the collaborators of the allocation service.
type ServiceParams struct {
	DB      transactor
	Repo    Repository
	Outbox  outbox.Emitter
	Audit   audit.Recorder
	Logger  *logger.Logger
	Metrics *metrics.CommissionMetrics
	Now     func() time.Time
}

type service struct {
	db      transactor
	repo    Repository
	outbox  outbox.Emitter
	audit   audit.Recorder
	logg    *logger.Logger
	metrics *metrics.CommissionMetrics
	clock   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transactor required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("allocation repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Now
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:      params.DB,
		repo:    params.Repo,
		outbox:  params.Outbox,
		audit:   params.Audit,
		logg:    params.Logger,
		metrics: params.Metrics,
		clock:   clock,
	}, nil
}

func (s *service) now() time.Time {
	return models.Timestamp(s.clock())
}

func storeError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func frozen(row *models.CommissionPayableAllocation) error {
	return pkgerrors.StateConflict(allocationEntity, row.ID.String(), string(row.State),
		"exported allocations are immutable")
}

func (s *service) Generate(ctx context.Context, actor auth.Actor, snapshotID uuid.UUID) (GenerateResult, error) {
	if !actor.IsSystem() && !actor.Role.IsPrivileged() {
		return GenerateResult{}, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can generate allocations")
	}

	var result GenerateResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snapshot, err := repo.FindSnapshot(ctx, snapshotID)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commission snapshot not found")
		}

		existing, err := repo.ListBySnapshot(ctx, snapshot.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			result.Allocations = existing
			return nil
		}
		if snapshot.Status == enums.SnapshotStatusReversed {
			return pkgerrors.StateConflict("CommissionSnapshot", snapshot.ID.String(), string(snapshot.Status),
				"reversed snapshots cannot be allocated",
				string(enums.SnapshotStatusPendingApproval), string(enums.SnapshotStatusApproved))
		}

		deal, err := repo.FindDeal(ctx, snapshot.DealID)
		if err != nil {
			return err
		}
		if deal == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
		}
		if deal.ConsultantID == nil {
			result.Allocations = []models.CommissionPayableAllocation{}
			return nil
		}

		rows := []models.CommissionPayableAllocation{{
			SnapshotID:        snapshot.ID,
			DealID:            deal.ID,
			BeneficiaryUserID: *deal.ConsultantID,
			Role:              enums.CommissionRoleConsultant,
			PercentBp:         money.BasisPointsScale,
			Amount:            snapshot.ConsultantAmount,
			Currency:          snapshot.Currency,
			State:             enums.PayableAllocationPending,
		}}
		if err := repo.Create(ctx, rows); err != nil {
			return err
		}
		result = GenerateResult{Allocations: rows, Created: true}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			rows, readErr := s.repo.ListBySnapshot(ctx, snapshotID)
			if readErr != nil {
				return GenerateResult{}, storeError(readErr, "load allocations")
			}
			return GenerateResult{Allocations: rows}, nil
		}
		return GenerateResult{}, storeError(err, "generate allocations")
	}
	if !result.Created {
		return result, nil
	}

	ids := make([]string, 0, len(result.Allocations))
	for _, row := range result.Allocations {
		ids = append(ids, row.ID.String())
		s.metrics.IncTransition("allocation", string(row.State))
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithSnapshotID(ctx, snapshotID.String()), map[string]any{
		"allocations": len(ids),
	}), "commission allocations generated")
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionAllocated,
		EntityType: audit.EntitySnapshot,
		EntityID:   snapshotID.String(),
		After:      result.Allocations,
		Meta:       map[string]any{"allocationIds": ids},
	})
	return result, nil
}

func (s *service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.CommissionPayableAllocation, error) {
	if !actor.HasAnyRole(enums.UserRoleAdmin, enums.UserRoleBroker) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can approve allocations")
	}
	return s.transition(ctx, actor, id, enums.PayableAllocationApproved, "")
}

func (s *service) Void(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.CommissionPayableAllocation, error) {
	if !actor.HasAnyRole(enums.UserRoleAdmin, enums.UserRoleBroker) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can void allocations")
	}
	return s.transition(ctx, actor, id, enums.PayableAllocationVoid, strings.TrimSpace(reason))
}

// transition moves a row to target. Rows already in target are returned
// untouched and are not audited again.
func (s *service) transition(ctx context.Context, actor auth.Actor, id uuid.UUID, target enums.PayableAllocationState, reason string) (*models.CommissionPayableAllocation, error) {
	var (
		row      *models.CommissionPayableAllocation
		previous enums.PayableAllocationState
		changed  bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.Find(ctx, id, true)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commission allocation not found")
		}
		row = current
		if current.IsExported() {
			return frozen(current)
		}
		if current.State == target {
			return nil
		}
		if target == enums.PayableAllocationApproved && current.State != enums.PayableAllocationPending {
			return pkgerrors.StateConflict(allocationEntity, current.ID.String(), string(current.State),
				"only pending allocations can be approved", string(enums.PayableAllocationPending))
		}

		now := s.now()
		fields := map[string]any{"state": target}
		switch target {
		case enums.PayableAllocationApproved:
			fields["approved_by_user_id"] = actor.UserIDPtr()
			fields["approved_at"] = now
			current.ApprovedByUserID = actor.UserIDPtr()
			current.ApprovedAt = &now
		case enums.PayableAllocationVoid:
			fields["voided_by_user_id"] = actor.UserIDPtr()
			fields["voided_at"] = now
			current.VoidedByUserID = actor.UserIDPtr()
			current.VoidedAt = &now
		}
		if err := repo.Update(ctx, current.ID, fields); err != nil {
			return err
		}
		previous = current.State
		current.State = target
		changed = true
		return nil
	})
	if err != nil {
		return nil, storeError(err, "update commission allocation")
	}
	if !changed {
		return row, nil
	}

	action := audit.ActionAllocationApproved
	if target == enums.PayableAllocationVoid {
		action = audit.ActionAllocationVoided
	}
	var meta map[string]any
	if reason != "" {
		meta = map[string]any{"reason": reason}
	}
	s.metrics.IncTransition("allocation", string(target))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"allocation_id": row.ID.String(),
		"state":         string(target),
	}), "commission allocation updated")
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: audit.EntityAllocation,
		EntityID:   row.ID.String(),
		Before:     map[string]any{"state": previous},
		After:      map[string]any{"state": row.State},
		Meta:       meta,
	})
	return row, nil
}

// checkFilter validates filter and normalizes its page with fallback as the
// default take.
func checkFilter(filter Filter, fallback int) (Filter, error) {
	if filter.State != "" && !filter.State.IsValid() {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid allocation state")
	}
	if filter.Page.Take > pagination.MaxTake {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "take must be at most 100")
	}
	filter.Page = filter.Page.Normalize(fallback)
	return filter, nil
}

func (s *service) List(ctx context.Context, filter Filter) (pagination.Page[models.CommissionPayableAllocation], error) {
	filter, err := checkFilter(filter, pagination.DefaultTake)
	if err != nil {
		return pagination.Page[models.CommissionPayableAllocation]{}, err
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Page[models.CommissionPayableAllocation]{}, storeError(err, "list commission allocations")
	}
	return pagination.Page[models.CommissionPayableAllocation]{
		Items: rows,
		Total: total,
		Take:  filter.Page.Take,
		Skip:  filter.Page.Skip,
	}, nil
}

func sortedKeys(m map[uuid.UUID][]string) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
