package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/internal/allocations"
	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
)

// SnapshotIntegrityJobName names runs of the snapshot integrity check.
const SnapshotIntegrityJobName = "snapshot-integrity"

// SnapshotIntegrityKey is the default idempotency key for a snapshot.
func SnapshotIntegrityKey(snapshotID uuid.UUID) string {
	return SnapshotIntegrityJobName + ":" + snapshotID.String()
}

// TriggerInput targets one snapshot. An empty IdempotencyKey uses
// SnapshotIntegrityKey.
type TriggerInput struct {
	SnapshotID     uuid.UUID `json:"snapshotId" validate:"required"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty" validate:"omitempty,max=200"`
}

type integrityChecker interface {
	ValidateSnapshotIntegrity(ctx context.Context, snapshotID uuid.UUID) (allocations.IntegrityResult, error)
}

// SnapshotIntegrity runs the allocation integrity check through the job runner.
type SnapshotIntegrity struct {
	runner  *Runner
	checker integrityChecker
	audit   audit.Recorder
}

func NewSnapshotIntegrity(runner *Runner, checker integrityChecker, recorder audit.Recorder) (*SnapshotIntegrity, error) {
	if runner == nil {
		return nil, fmt.Errorf("job runner required")
	}
	if checker == nil {
		return nil, fmt.Errorf("integrity checker required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &SnapshotIntegrity{runner: runner, checker: checker, audit: recorder}, nil
}

// Trigger runs the check for the snapshot unless a run under the same key
// already succeeded or is in flight.
func (j *SnapshotIntegrity) Trigger(ctx context.Context, actor auth.Actor, input TriggerInput) (RunResult, error) {
	if !actor.IsSystem() && !actor.Role.IsPrivileged() {
		return RunResult{}, pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can trigger integrity checks")
	}
	if input.SnapshotID == uuid.Nil {
		return RunResult{}, pkgerrors.New(pkgerrors.CodeValidation, "snapshot id is required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		key = SnapshotIntegrityKey(input.SnapshotID)
	}

	res, err := j.runner.Run(ctx, RunInput{
		JobName:        SnapshotIntegrityJobName,
		IdempotencyKey: key,
		Input:          map[string]string{"snapshotId": input.SnapshotID.String()},
	}, func(ctx context.Context, run *models.JobRun) (any, error) {
		return j.checker.ValidateSnapshotIntegrity(ctx, input.SnapshotID)
	})
	if err != nil || res.Reused || res.Run == nil {
		return res, err
	}

	j.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionIntegrityJobCompleted,
		EntityType: audit.EntityJobRun,
		EntityID:   res.Run.ID.String(),
		After:      map[string]any{"status": res.Run.Status, "attempts": res.Run.Attempts, "result": res.Run.Result},
		Meta:       map[string]any{"snapshotId": input.SnapshotID.String(), "idempotencyKey": key},
	})
	return res, nil
}
