package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
)

// DeadLetterStore lists and requeues events the publisher gave up on.
type DeadLetterStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) (models.OutboxEvent, error)
}

// DeadLetterList supports ?reason=, ?aggregateType= and ?limit=.
func DeadLetterList(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			unavailable(w, r, logg, "dead letter store")
			return
		}
		q := r.URL.Query()
		filter := outbox.DLQFilter{
			Reason:        enums.OutboxDLQReason(strings.TrimSpace(q.Get("reason"))),
			AggregateType: enums.OutboxAggregateType(strings.TrimSpace(q.Get("aggregateType"))),
		}
		if filter.Reason != "" && !filter.Reason.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown dead letter reason"))
			return
		}
		if filter.AggregateType != "" && !filter.AggregateType.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown aggregate type"))
			return
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			filter.Limit = limit
		}

		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// DeadLetterRequeue hands a dead letter back to the publisher.
func DeadLetterRequeue(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			unavailable(w, r, logg, "dead letter store")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.ParseURLUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := store.Requeue(r.Context(), eventID)
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue dead letter")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"event_id":   event.ID.String(),
				"event_type": event.EventType,
				"actor_id":   actor.UserID.String(),
			}), "dead letter requeued")
		}
		responses.WriteSuccess(w, event)
	}
}
