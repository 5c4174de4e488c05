package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	"github.com/angelmondragon/brokerledger/internal/hierarchy"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

type setParentRequest struct {
	ParentID *uuid.UUID `json:"parentId"`
}

type setSplitRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type splitResponse struct {
	Role    enums.CommissionRole `json:"role"`
	Percent decimal.Decimal      `json:"percent"`
}

// HierarchySetParent assigns or clears (parentId null) a user's manager.
func HierarchySetParent(svc hierarchy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "hierarchy service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		userID, err := validators.ParseURLUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req setParentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetParent(r.Context(), actor, userID, req.ParentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"userId": userID, "parentId": req.ParentID})
	}
}

// HierarchyUpline lists ancestors nearest first, bounded by ?maxDepth=.
func HierarchyUpline(svc hierarchy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "hierarchy service")
			return
		}
		userID, err := validators.ParseURLUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		maxDepth, err := validators.ParseQueryInt(r, "maxDepth", 0, 0, hierarchy.DefaultMaxDepth*10)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		upline, err := svc.GetUpline(r.Context(), userID, maxDepth)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, upline)
	}
}

// HierarchyGetSplit returns the stored split for a role, falling back to the
// configured default policy share.
func HierarchyGetSplit(svc hierarchy.Service, cfg config.CommissionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "hierarchy service")
			return
		}
		role, err := parseCommissionRole(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		percent, err := svc.GetEffectiveCommissionSplit(r.Context(), role, defaultSplitPercent(cfg, role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, splitResponse{Role: role, Percent: percent})
	}
}

// HierarchySetSplit stores a percent override for a role. Admins only.
func HierarchySetSplit(svc hierarchy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "hierarchy service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		role, err := parseCommissionRole(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req setSplitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		saved, err := svc.SetCommissionSplit(r.Context(), actor, role, req.Percent)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, saved)
	}
}

func parseCommissionRole(r *http.Request) (enums.CommissionRole, error) {
	raw := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "role")))
	role, err := enums.ParseCommissionRole(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid commission role").WithDetails(map[string]any{"field": "role"})
	}
	return role, nil
}

func defaultSplitPercent(cfg config.CommissionConfig, role enums.CommissionRole) decimal.Decimal {
	var bp int64
	switch role {
	case enums.CommissionRoleHunter:
		bp = cfg.DefaultHunterBp
	case enums.CommissionRoleConsultant:
		bp = cfg.DefaultConsultantBp
	case enums.CommissionRoleBroker:
		bp = cfg.DefaultBrokerBp
	case enums.CommissionRoleSystem:
		bp = cfg.DefaultSystemBp
	}
	return decimal.New(bp, -2)
}
