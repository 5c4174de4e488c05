package commissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/hierarchy"
	"github.com/angelmondragon/brokerledger/internal/ledger"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the commission policy, snapshot, approval, reversal and payout
// state machine. Every money-moving call runs in a single transaction.
type Service interface {
	CreatePolicy(ctx context.Context, actor auth.Actor, input CreatePolicyInput) (*models.CommissionPolicyVersion, error)
	ActivePolicy(ctx context.Context, at time.Time) (*models.CommissionPolicyVersion, error)

	CreateSnapshot(ctx context.Context, actor auth.Actor, input CreateSnapshotInput) (SnapshotResult, error)
	// CreateSnapshotTx runs inside the caller's transaction. The caller must
	// invoke RecordSnapshotCreated once the transaction commits.
	CreateSnapshotTx(ctx context.Context, tx *gorm.DB, actor auth.Actor, input CreateSnapshotInput) (SnapshotResult, error)
	RecordSnapshotCreated(ctx context.Context, actor auth.Actor, result SnapshotResult)

	ApproveSnapshot(ctx context.Context, actor auth.Actor, snapshotID uuid.UUID, override bool) (*models.CommissionSnapshot, error)
	ReverseSnapshot(ctx context.Context, actor auth.Actor, snapshotID uuid.UUID, input ReverseInput) (*models.CommissionSnapshot, error)
	CreatePayout(ctx context.Context, actor auth.Actor, input CreatePayoutInput) (*models.CommissionPayout, error)

	GetSnapshot(ctx context.Context, snapshotID uuid.UUID) (*SnapshotDetail, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) (pagination.Page[models.CommissionSnapshot], error)
}

// ServiceParams groups the collaborators of the commission service.
type ServiceParams struct {
	DB        transactor
	Repo      Repository
	Ledger    ledger.Service
	Hierarchy hierarchy.Service
	Outbox    outbox.Emitter
	Audit     audit.Recorder
	Logger    *logger.Logger
	Metrics   *metrics.CommissionMetrics
	Config    config.CommissionConfig
	Now       func() time.Time
}

type service struct {
	db        transactor
	repo      Repository
	ledger    ledger.Service
	hierarchy hierarchy.Service
	outbox    outbox.Emitter
	audit     audit.Recorder
	logg      *logger.Logger
	metrics   *metrics.CommissionMetrics
	cfg       config.CommissionConfig
	clock     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transactor required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
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
		db:        params.DB,
		repo:      params.Repo,
		ledger:    params.Ledger,
		hierarchy: params.Hierarchy,
		outbox:    params.Outbox,
		audit:     params.Audit,
		logg:      params.Logger,
		metrics:   params.Metrics,
		cfg:       params.Config,
		clock:     clock,
	}, nil
}

func (s *service) now() time.Time {
	return models.Timestamp(s.clock())
}

// storeError keeps typed errors and wraps anything else as a dependency failure.
func (s *service) storeError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return outbox.ActorFromIDs(actor.UserIDPtr(), actor.RolePtr())
}
