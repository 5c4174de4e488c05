// Package app assembles the commission services shared by the API and the
// cron worker.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/brokerledger/internal/allocations"
	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/internal/deals"
	"github.com/angelmondragon/brokerledger/internal/hierarchy"
	"github.com/angelmondragon/brokerledger/internal/jobs"
	"github.com/angelmondragon/brokerledger/internal/ledger"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
)

// Params are the process-level collaborators. Registerer may be nil to skip
// metric registration; Now defaults to time.Now.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Services is the wired service graph.
type Services struct {
	Audit             audit.Service
	Hierarchy         hierarchy.Service
	Ledger            ledger.Service
	Commissions       commissions.Service
	CommissionRepo    commissions.Repository
	Allocations       allocations.Service
	Deals             deals.Service
	Jobs              *jobs.Runner
	SnapshotIntegrity *jobs.SnapshotIntegrity
	Outbox            *outbox.Service
	OutboxRepo        *outbox.Repository
	DeadLetters       *outbox.DLQRepository
}

func Build(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	commissionMetrics := metrics.NewCommissionMetrics(p.Registerer)

	auditSvc, err := audit.NewService(
		audit.NewRepository(conn),
		audit.NewOwnershipResolver(conn),
		p.Logger,
		metrics.NewAuditMetrics(p.Registerer),
		audit.Options{
			IntegrityWindow:    cfg.Audit.IntegrityWindow,
			IntegrityWindowMax: cfg.Audit.IntegrityWindowMax,
			Now:                p.Now,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}

	hierarchySvc, err := hierarchy.NewService(p.DB, hierarchy.NewRepository(conn), auditSvc, cfg.Commission.HierarchyDepth)
	if err != nil {
		return nil, fmt.Errorf("hierarchy service: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, p.Logger)

	commissionRepo := commissions.NewRepository(conn)
	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		DB:        p.DB,
		Repo:      commissionRepo,
		Ledger:    ledgerSvc,
		Hierarchy: hierarchySvc,
		Outbox:    outboxSvc,
		Audit:     auditSvc,
		Logger:    p.Logger,
		Metrics:   commissionMetrics,
		Config:    cfg.Commission,
		Now:       p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}

	allocationSvc, err := allocations.NewService(allocations.ServiceParams{
		DB:      p.DB,
		Repo:    allocations.NewRepository(conn),
		Outbox:  outboxSvc,
		Audit:   auditSvc,
		Logger:  p.Logger,
		Metrics: commissionMetrics,
		Now:     p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("allocation service: %w", err)
	}

	dealSvc, err := deals.NewService(p.DB, deals.NewRepository(conn), commissionSvc, auditSvc, p.Logger, commissionMetrics)
	if err != nil {
		return nil, fmt.Errorf("deal service: %w", err)
	}

	runner, err := jobs.NewRunner(jobs.RunnerParams{
		Repo:    jobs.NewRepository(conn),
		Logger:  p.Logger,
		Metrics: metrics.NewJobRunMetrics(p.Registerer),
		Config:  cfg.Jobs,
		Now:     p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("job runner: %w", err)
	}

	integrity, err := jobs.NewSnapshotIntegrity(runner, allocationSvc, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("snapshot integrity job: %w", err)
	}

	return &Services{
		Audit:             auditSvc,
		Hierarchy:         hierarchySvc,
		Ledger:            ledgerSvc,
		Commissions:       commissionSvc,
		CommissionRepo:    commissionRepo,
		Allocations:       allocationSvc,
		Deals:             dealSvc,
		Jobs:              runner,
		SnapshotIntegrity: integrity,
		Outbox:            outboxSvc,
		OutboxRepo:        outboxRepo,
		DeadLetters:       outbox.NewDLQRepository(conn),
	}, nil
}
