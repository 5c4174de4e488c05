package commissions

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	internalcommissions "github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

type approveSnapshotRequest struct {
	Override bool `json:"override"`
}

// CreateSnapshot snapshots a won deal. Replays answer 200 with the existing
// snapshot; first creation answers 201.
func CreateSnapshot(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var input internalcommissions.CreateSnapshotInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSnapshot(r.Context(), actor, input)
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

// ListSnapshots pages snapshots filtered by ?dealId= and ?status=.
func ListSnapshots(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dealID, err := validators.ParseQueryUUID(r, "dealId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := internalcommissions.SnapshotFilter{
			DealID: dealID,
			Status: enums.SnapshotStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
			Page:   page,
		}

		list, err := svc.ListSnapshots(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetSnapshot returns the snapshot with its lines and ledger totals.
func GetSnapshot(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		snapshotID, err := validators.ParseURLUUID(r, "snapshotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetSnapshot(r.Context(), snapshotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// ApproveSnapshot moves a pending snapshot to APPROVED. An empty body is
// accepted and means no override.
func ApproveSnapshot(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		snapshotID, err := validators.ParseURLUUID(r, "snapshotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req approveSnapshotRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		snapshot, err := svc.ApproveSnapshot(r.Context(), actor, snapshotID, req.Override)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// ReverseSnapshot debits the outstanding balance of an approved snapshot.
func ReverseSnapshot(svc internalcommissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		snapshotID, err := validators.ParseURLUUID(r, "snapshotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input internalcommissions.ReverseInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Reason = validators.SanitizeString(input.Reason, 500)
		if input.Reason == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reason is required"))
			return
		}

		snapshot, err := svc.ReverseSnapshot(r.Context(), actor, snapshotID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}
