package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/repo"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// claimable are the states a runner may move to RUNNING.
var claimable = []enums.JobRunStatus{enums.JobRunPending, enums.JobRunFailed}

// Repository persists job runs keyed by (job name, idempotency key).
type Repository interface {
	Find(ctx context.Context, jobName, key string) (*models.JobRun, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.JobRun, error)
	Create(ctx context.Context, run *models.JobRun) error
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Succeed(ctx context.Context, id uuid.UUID, result *string, at time.Time) error
	Retry(ctx context.Context, id uuid.UUID, lastErr string, nextRetryAt time.Time) error
	Fail(ctx context.Context, id uuid.UUID, lastErr string, at time.Time) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) take(query *gorm.DB) (*models.JobRun, error) {
	var run models.JobRun
	err := query.Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) Find(ctx context.Context, jobName, key string) (*models.JobRun, error) {
	return r.take(r.DB(ctx).Where("job_name = ? AND idempotency_key = ?", jobName, key))
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.JobRun, error) {
	return r.take(r.DB(ctx).Where("id = ?", id))
}

func (r *repository) Create(ctx context.Context, run *models.JobRun) error {
	return r.DB(ctx).Create(run).Error
}

// Claim moves a claimable run to RUNNING and counts the attempt. It reports
// false when another runner got there first.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.JobRun{}).
		Where("id = ? AND status IN ?", id, claimable).
		Updates(map[string]any{
			"status":        enums.JobRunRunning,
			"attempts":      gorm.Expr("attempts + 1"),
			"started_at":    at,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Succeed(ctx context.Context, id uuid.UUID, result *string, at time.Time) error {
	return r.DB(ctx).Model(&models.JobRun{}).
		Where("id = ? AND status = ?", id, enums.JobRunRunning).
		Updates(map[string]any{
			"status":      enums.JobRunSucceeded,
			"result":      result,
			"last_error":  nil,
			"finished_at": at,
		}).Error
}

func (r *repository) Retry(ctx context.Context, id uuid.UUID, lastErr string, nextRetryAt time.Time) error {
	return r.DB(ctx).Model(&models.JobRun{}).
		Where("id = ? AND status = ?", id, enums.JobRunRunning).
		Updates(map[string]any{
			"status":        enums.JobRunPending,
			"last_error":    lastErr,
			"next_retry_at": nextRetryAt,
		}).Error
}

func (r *repository) Fail(ctx context.Context, id uuid.UUID, lastErr string, at time.Time) error {
	return r.DB(ctx).Model(&models.JobRun{}).
		Where("id = ? AND status = ?", id, enums.JobRunRunning).
		Updates(map[string]any{
			"status":      enums.JobRunFailed,
			"last_error":  lastErr,
			"finished_at": at,
		}).Error
}
