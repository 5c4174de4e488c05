package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

// AuditQuery searches the whole trail. Privileged roles only.
func AuditQuery(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "audit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		filter, err := auditFilter(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.Query(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AuditMine lists rows written by the caller.
func AuditMine(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "audit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		filter, err := auditFilter(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.Mine(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AuditForEntity lists the trail of one entity the caller may see.
func AuditForEntity(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "audit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entityType := strings.TrimSpace(chi.URLParam(r, "entityType"))
		entityID := strings.TrimSpace(chi.URLParam(r, "entityId"))
		list, err := svc.ForEntity(r.Context(), actor, entityType, entityID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AuditIntegrity verifies the most recent ?limit= rows of the chain.
func AuditIntegrity(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "audit service")
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.IntegrityReport(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func auditFilter(r *http.Request, withActor bool) (audit.Filter, error) {
	page, err := validators.ParsePage(r)
	if err != nil {
		return audit.Filter{}, err
	}
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return audit.Filter{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return audit.Filter{}, err
	}
	q := r.URL.Query()
	filter := audit.Filter{
		EntityType: validators.SanitizeString(q.Get("entityType"), 100),
		EntityID:   validators.SanitizeString(q.Get("entityId"), 100),
		Action:     validators.SanitizeString(q.Get("action"), 100),
		Search:     validators.SanitizeString(q.Get("search"), 200),
		From:       from,
		To:         to,
		Page:       page,
	}
	if withActor {
		actorID, err := validators.ParseQueryUUID(r, "actorId")
		if err != nil {
			return audit.Filter{}, err
		}
		filter.ActorID = actorID
	}
	return filter, nil
}
