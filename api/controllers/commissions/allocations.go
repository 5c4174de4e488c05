package commissions

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/api/validators"
	"github.com/angelmondragon/brokerledger/internal/allocations"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

type voidAllocationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// GenerateAllocations materializes payable allocations for a snapshot.
func GenerateAllocations(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
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

		result, err := svc.Generate(r.Context(), actor, snapshotID)
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

// SnapshotIntegrity compares a snapshot's allocations against its pool.
func SnapshotIntegrity(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
			return
		}
		snapshotID, err := validators.ParseURLUUID(r, "snapshotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ValidateSnapshotIntegrity(r.Context(), snapshotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListAllocations pages allocations filtered by ?snapshotId=, ?state= and ?batchId=.
func ListAllocations(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
			return
		}
		filter, err := allocationFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ApproveAllocation moves a pending allocation to APPROVED.
func ApproveAllocation(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		allocationID, err := validators.ParseURLUUID(r, "allocationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Approve(r.Context(), actor, allocationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// VoidAllocation voids an allocation that has not been exported.
func VoidAllocation(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		allocationID, err := validators.ParseURLUUID(r, "allocationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req voidAllocationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Void(r.Context(), actor, allocationID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// MarkExported stamps approved allocations with an export batch.
func MarkExported(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var input allocations.MarkExportedInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.MarkExported(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ExportCSV streams the filtered allocations as a CSV attachment.
func ExportCSV(svc allocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "allocation service")
			return
		}
		filter, err := allocationFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var buf bytes.Buffer
		if err := svc.ExportCSV(r.Context(), filter, &buf); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := fmt.Sprintf("commission-allocations-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil && logg != nil {
			logg.Error(r.Context(), "failed to write csv export", err)
		}
	}
}

func allocationFilter(r *http.Request) (allocations.Filter, error) {
	page, err := validators.ParsePage(r)
	if err != nil {
		return allocations.Filter{}, err
	}
	snapshotID, err := validators.ParseQueryUUID(r, "snapshotId")
	if err != nil {
		return allocations.Filter{}, err
	}
	batchID := validators.SanitizeString(r.URL.Query().Get("batchId"), 100)
	state := enums.PayableAllocationState(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state"))))
	if state != "" && !state.IsValid() {
		return allocations.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid allocation state").WithDetails(map[string]any{"field": "state"})
	}
	return allocations.Filter{
		SnapshotID: snapshotID,
		State:      state,
		BatchID:    batchID,
		Page:       page,
	}, nil
}
