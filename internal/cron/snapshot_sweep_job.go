package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/brokerledger/internal/jobs"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

const (
	SnapshotSweepJobName = "snapshot-integrity-sweep"

	defaultSweepLookback  = 24 * time.Hour
	defaultSweepBatchSize = 100
)

type touchedSnapshotLister interface {
	ListTouchedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

type integrityTrigger interface {
	Trigger(ctx context.Context, actor auth.Actor, input jobs.TriggerInput) (jobs.RunResult, error)
}

// SnapshotSweepJobParams configure the daily snapshot integrity sweep.
type SnapshotSweepJobParams struct {
	Logger    *logger.Logger
	Snapshots touchedSnapshotLister
	Trigger   integrityTrigger
	Lookback  time.Duration
	BatchSize int
}

// NewSnapshotSweepJob checks every snapshot touched within the lookback. Each
// snapshot runs at most once per UTC day.
func NewSnapshotSweepJob(params SnapshotSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot lister required")
	}
	if params.Trigger == nil {
		return nil, fmt.Errorf("integrity trigger required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultSweepLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &snapshotSweepJob{
		logg:      params.Logger,
		snapshots: params.Snapshots,
		trigger:   params.Trigger,
		lookback:  lookback,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type snapshotSweepJob struct {
	logg      *logger.Logger
	snapshots touchedSnapshotLister
	trigger   integrityTrigger
	lookback  time.Duration
	batch     int
	now       func() time.Time
}

func (j *snapshotSweepJob) Name() string { return SnapshotSweepJobName }

// SweepKey scopes a sweep run of one snapshot to the UTC day.
func SweepKey(snapshotID uuid.UUID, at time.Time) string {
	return jobs.SnapshotIntegrityKey(snapshotID) + ":" + at.UTC().Format(time.DateOnly)
}

func (j *snapshotSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	ids, err := j.snapshots.ListTouchedSince(ctx, now.Add(-j.lookback), j.batch)
	if err != nil {
		return fmt.Errorf("list touched snapshots: %w", err)
	}

	var (
		errs                              []error
		checked, reused, failed, findings int
	)
	for _, id := range ids {
		result, err := j.trigger.Trigger(ctx, auth.System, jobs.TriggerInput{
			SnapshotID:     id,
			IdempotencyKey: SweepKey(id, now),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot %s: %w", id, err))
			continue
		}
		if result.Reused {
			reused++
			continue
		}
		checked++
		snapshotCtx := j.logg.WithSnapshotID(ctx, id.String())
		switch {
		case result.Run == nil:
		case result.Run.Status == enums.JobRunFailed:
			failed++
			j.logg.Warn(snapshotCtx, "snapshot integrity run failed")
		case !integrityOK(result.Run.Result):
			findings++
			j.logg.Warn(snapshotCtx, "snapshot integrity mismatch")
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"touched":  len(ids),
		"checked":  checked,
		"reused":   reused,
		"failed":   failed,
		"findings": findings,
	})
	j.logg.Info(logCtx, "snapshot integrity sweep complete")
	return multierr.Combine(errs...)
}

func integrityOK(result *string) bool {
	if result == nil {
		return false
	}
	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(*result), &payload); err != nil {
		return false
	}
	return payload.OK
}
