package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/brokerledger/api/controllers"
	commissioncontrollers "github.com/angelmondragon/brokerledger/api/controllers/commissions"
	"github.com/angelmondragon/brokerledger/api/middleware"
	"github.com/angelmondragon/brokerledger/internal/allocations"
	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/internal/deals"
	"github.com/angelmondragon/brokerledger/internal/hierarchy"
	"github.com/angelmondragon/brokerledger/internal/jobs"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/redis"
)

// Dependencies are the services mounted by NewRouter. Redis is optional; a
// nil client disables readiness probing, idempotent replay and throttling.
type Dependencies struct {
	DB                db.Pinger
	Redis             *redis.Client
	Gatherer          prometheus.Gatherer
	Commissions       commissions.Service
	Allocations       allocations.Service
	Deals             deals.Service
	Hierarchy         hierarchy.Service
	Audit             audit.Service
	SnapshotIntegrity *jobs.SnapshotIntegrity
	DeadLetters       controllers.DeadLetterStore
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	readiness := map[string]controllers.Pinger{"database": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	privileged := middleware.RequireAnyRole(logg, enums.UserRoleAdmin, enums.UserRoleBroker)
	adminOnly := middleware.RequireAnyRole(logg, enums.UserRoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
			r.Use(middleware.WriteRateLimit(
				middleware.NewRateLimitPolicy("writes", cfg.HTTP.WriteWindow, cfg.HTTP.WriteLimit),
				deps.Redis,
				logg,
			))
		}

		r.Route("/deals", func(r chi.Router) {
			r.Get("/", controllers.DealList(deps.Deals, logg))
			r.Get("/{dealId}", controllers.DealDetail(deps.Deals, logg))
			r.Post("/{dealId}/won", controllers.DealMarkWon(deps.Deals, logg))
		})

		r.Route("/commissions", func(r chi.Router) {
			r.Route("/policies", func(r chi.Router) {
				r.With(adminOnly).Post("/", commissioncontrollers.CreatePolicy(deps.Commissions, logg))
				r.Get("/active", commissioncontrollers.ActivePolicy(deps.Commissions, logg))
			})

			r.Route("/snapshots", func(r chi.Router) {
				r.Post("/", commissioncontrollers.CreateSnapshot(deps.Commissions, logg))
				r.With(privileged).Get("/", commissioncontrollers.ListSnapshots(deps.Commissions, logg))
				r.Route("/{snapshotId}", func(r chi.Router) {
					r.With(privileged).Get("/", commissioncontrollers.GetSnapshot(deps.Commissions, logg))
					r.With(privileged).Post("/approve", commissioncontrollers.ApproveSnapshot(deps.Commissions, logg))
					r.With(privileged).Post("/reverse", commissioncontrollers.ReverseSnapshot(deps.Commissions, logg))
					r.Post("/allocations", commissioncontrollers.GenerateAllocations(deps.Allocations, logg))
					r.With(privileged).Get("/integrity", commissioncontrollers.SnapshotIntegrity(deps.Allocations, logg))
				})
			})

			r.With(privileged).Post("/payouts", commissioncontrollers.CreatePayout(deps.Commissions, logg))

			r.Route("/allocations", func(r chi.Router) {
				r.Use(privileged)
				r.Get("/", commissioncontrollers.ListAllocations(deps.Allocations, logg))
				r.Post("/export", commissioncontrollers.MarkExported(deps.Allocations, logg))
				r.Get("/export.csv", commissioncontrollers.ExportCSV(deps.Allocations, logg))
				r.Post("/{allocationId}/approve", commissioncontrollers.ApproveAllocation(deps.Allocations, logg))
				r.Post("/{allocationId}/void", commissioncontrollers.VoidAllocation(deps.Allocations, logg))
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Use(privileged)
			r.Post("/snapshot-integrity", controllers.TriggerSnapshotIntegrity(triggerOrNil(deps.SnapshotIntegrity), logg))
		})

		r.Route("/outbox/dead-letters", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", controllers.DeadLetterList(deps.DeadLetters, logg))
			r.Post("/{eventId}/requeue", controllers.DeadLetterRequeue(deps.DeadLetters, logg))
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", controllers.AuditQuery(deps.Audit, logg))
			r.Get("/me", controllers.AuditMine(deps.Audit, logg))
			r.Get("/entities/{entityType}/{entityId}", controllers.AuditForEntity(deps.Audit, logg))
			r.With(privileged).Get("/integrity", controllers.AuditIntegrity(deps.Audit, logg))
		})

		r.Route("/hierarchy", func(r chi.Router) {
			r.With(privileged).Put("/users/{userId}/parent", controllers.HierarchySetParent(deps.Hierarchy, logg))
			r.Get("/users/{userId}/upline", controllers.HierarchyUpline(deps.Hierarchy, logg))
			r.Get("/splits/{role}", controllers.HierarchyGetSplit(deps.Hierarchy, cfg.Commission, logg))
			r.With(adminOnly).Put("/splits/{role}", controllers.HierarchySetSplit(deps.Hierarchy, logg))
		})
	})

	return r
}

// triggerOrNil keeps a nil *SnapshotIntegrity from becoming a non-nil interface.
func triggerOrNil(j *jobs.SnapshotIntegrity) controllers.IntegrityTrigger {
	if j == nil {
		return nil
	}
	return j
}
