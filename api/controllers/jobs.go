package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	"github.com/angelmondragon/brokerledger/internal/jobs"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

// IntegrityTrigger starts the snapshot integrity job.
type IntegrityTrigger interface {
	Trigger(ctx context.Context, actor auth.Actor, input jobs.TriggerInput) (jobs.RunResult, error)
}

// TriggerSnapshotIntegrity runs the integrity job for a snapshot, or returns
// the earlier run under the same idempotency key.
func TriggerSnapshotIntegrity(trigger IntegrityTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if trigger == nil {
			unavailable(w, r, logg, "job runner")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var input jobs.TriggerInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := trigger.Trigger(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
