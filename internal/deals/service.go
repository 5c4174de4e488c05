package deals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MarkWonResult is the deal after the transition and its commission snapshot.
type MarkWonResult struct {
	Deal         *models.Deal               `json:"deal"`
	Snapshot     *models.CommissionSnapshot `json:"snapshot"`
	Transitioned bool                       `json:"transitioned"`
	Created      bool                       `json:"created"`
}

// Service is the deal read model plus the WON trigger that snapshots
// commissions.
type Service interface {
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Deal, error)
	List(ctx context.Context, actor auth.Actor, filter Filter) (pagination.Page[models.Deal], error)
	MarkWon(ctx context.Context, actor auth.Actor, dealID uuid.UUID) (MarkWonResult, error)
}

type service struct {
	db          transactor
	repo        Repository
	commissions commissions.Service
	audit       audit.Recorder
	logg        *logger.Logger
	metrics     *metrics.CommissionMetrics
	clock       func() time.Time
}

func NewService(db transactor, repo Repository, commissionSvc commissions.Service, recorder audit.Recorder, logg *logger.Logger, m *metrics.CommissionMetrics) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transactor required")
	}
	if repo == nil {
		return nil, fmt.Errorf("deal repository required")
	}
	if commissionSvc == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:          db,
		repo:        repo,
		commissions: commissionSvc,
		audit:       recorder,
		logg:        logg,
		metrics:     m,
		clock:       time.Now,
	}, nil
}

func participates(deal *models.Deal, userID uuid.UUID) bool {
	for _, id := range []*uuid.UUID{deal.ConsultantID, deal.HunterID, deal.BrokerID} {
		if id != nil && *id == userID {
			return true
		}
	}
	return false
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Deal, error) {
	deal, err := s.repo.Find(ctx, id, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
	}
	if deal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
	}
	if !actor.Role.IsPrivileged() && !participates(deal, actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "deal is not visible to this user")
	}
	return deal, nil
}

// List scopes non privileged actors to deals they take part in.
func (s *service) List(ctx context.Context, actor auth.Actor, filter Filter) (pagination.Page[models.Deal], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return pagination.Page[models.Deal]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid deal status")
	}
	if filter.Page.Take > pagination.MaxTake {
		return pagination.Page[models.Deal]{}, pkgerrors.New(pkgerrors.CodeValidation, "take must be at most 100")
	}
	if !actor.Role.IsPrivileged() {
		id := actor.UserID
		filter.ParticipantID = &id
	}
	filter.Page = filter.Page.Normalize(pagination.DefaultTake)

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Page[models.Deal]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deals")
	}
	return pagination.Page[models.Deal]{Items: rows, Total: total, Take: filter.Page.Take, Skip: filter.Page.Skip}, nil
}

// MarkWon flips the deal to WON and snapshots its commission in the same
// transaction. Marking a WON deal again returns its existing snapshot.
func (s *service) MarkWon(ctx context.Context, actor auth.Actor, dealID uuid.UUID) (MarkWonResult, error) {
	var result MarkWonResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		deal, err := repo.Find(ctx, dealID, true)
		if err != nil {
			return err
		}
		if deal == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
		}
		if !actor.IsSystem() && !actor.Role.IsPrivileged() && !participates(deal, actor.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only deal participants, brokers and admins can mark a deal won")
		}

		switch deal.Status {
		case enums.DealStatusLost:
			return pkgerrors.StateConflict("Deal", deal.ID.String(), string(deal.Status),
				"lost deals cannot be won", string(enums.DealStatusOpen))
		case enums.DealStatusOpen:
			wonAt := models.Timestamp(s.clock())
			if err := repo.Update(ctx, deal.ID, map[string]any{
				"status": enums.DealStatusWon,
				"won_at": wonAt,
			}); err != nil {
				return err
			}
			deal.Status = enums.DealStatusWon
			deal.WonAt = &wonAt
			result.Transitioned = true
		}

		snapshot, err := s.commissions.CreateSnapshotTx(ctx, tx, actor, commissions.CreateSnapshotInput{DealID: deal.ID})
		if err != nil {
			return err
		}
		result.Deal = deal
		result.Snapshot = snapshot.Snapshot
		result.Created = snapshot.Created
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return MarkWonResult{}, typed
		}
		return MarkWonResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark deal won")
	}

	s.commissions.RecordSnapshotCreated(ctx, actor, commissions.SnapshotResult{Snapshot: result.Snapshot, Created: result.Created})
	if result.Transitioned {
		s.metrics.IncTransition("deal", string(enums.DealStatusWon))
		s.logg.Info(s.logg.WithField(ctx, "deal_id", result.Deal.ID.String()), "deal marked won")
		s.audit.Record(ctx, audit.Entry{
			Actor:      actor,
			Action:     audit.ActionDealWon,
			EntityType: audit.EntityDeal,
			EntityID:   result.Deal.ID.String(),
			Before:     map[string]any{"status": enums.DealStatusOpen},
			After:      map[string]any{"status": enums.DealStatusWon, "wonAt": result.Deal.WonAt},
			Meta:       map[string]any{"snapshotId": result.Snapshot.ID.String()},
		})
	}
	return result, nil
}
