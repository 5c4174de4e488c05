package commissions

import (
	"net/http"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	internalcommissions "github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

// CreatePayout records a disbursement against approved allocation lines.
func CreatePayout(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var input internalcommissions.CreatePayoutInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Reference = validators.SanitizeString(input.Reference, 200)

		payout, err := svc.CreatePayout(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, payout)
	}
}
