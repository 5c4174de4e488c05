package commissions

import (
	"net/http"
	"time"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	internalcommissions "github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

// CreatePolicy appends a new policy version.
func CreatePolicy(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var input internalcommissions.CreatePolicyInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		policy, err := svc.CreatePolicy(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, policy)
	}
}

// ActivePolicy resolves the policy in force at ?at=, defaulting to now.
func ActivePolicy(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		at, err := validators.ParseQueryTime(r, "at")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		instant := time.Now().UTC()
		if at != nil {
			instant = *at
		}

		policy, err := svc.ActivePolicy(r.Context(), instant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, policy)
	}
}
