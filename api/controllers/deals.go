package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	"github.com/angelmondragon/brokerledger/internal/deals"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

// DealMarkWon flips a deal to WON and snapshots its commission.
func DealMarkWon(svc deals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "deal service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		dealID, err := validators.ParseURLUUID(r, "dealId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.MarkWon(r.Context(), actor, dealID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Created {
			responses.WriteCreated(w, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DealList pages deals visible to the actor, filtered by ?status=.
func DealList(svc deals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "deal service")
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

		list, err := svc.List(r.Context(), actor, deals.Filter{
			Status: enums.DealStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
			Page:   page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func DealDetail(svc deals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "deal service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		dealID, err := validators.ParseURLUUID(r, "dealId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deal, err := svc.Get(r.Context(), actor, dealID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deal)
	}
}
