package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newRunner(t *testing.T, repo Repository, clock *fakeClock) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerParams{
		Repo:   repo,
		Logger: logger.New(logger.Options{ServiceName: "jobs-test", Output: io.Discard}),
		Config: config.JobsConfig{MaxAttempts: 3, BackoffBase: time.Second, BackoffMax: 5 * time.Second},
		Sleep:  clock.Sleep,
		Now:    clock.Now,
	})
	require.NoError(t, err)
	return runner
}

func setup(t *testing.T) (*gorm.DB, *Runner, *fakeClock) {
	t.Helper()
	conn := dbtest.Open(t)
	clock := &fakeClock{now: start}
	return conn, newRunner(t, NewRepository(conn), clock), clock
}

func TestRunReusesSucceededRun(t *testing.T) {
	conn, runner, _ := setup(t)
	existing := models.JobRun{JobName: "check", IdempotencyKey: "k1", Status: enums.JobRunSucceeded, Attempts: 1, MaxAttempts: 3}
	require.NoError(t, conn.Create(&existing).Error)

	calls := 0
	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k1"}, func(context.Context, *models.JobRun) (any, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, existing.ID, res.Run.ID)
	assert.Zero(t, calls)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	_, runner, clock := setup(t)

	calls := 0
	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k2"}, func(context.Context, *models.JobRun) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("store hiccup")
		}
		return map[string]bool{"ok": true}, nil
	})
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, enums.JobRunSucceeded, res.Run.Status)
	assert.Equal(t, 2, res.Run.Attempts)
	require.NotNil(t, res.Run.Result)
	assert.JSONEq(t, `{"ok":true}`, *res.Run.Result)
	assert.Nil(t, res.Run.LastError)
	assert.Equal(t, []time.Duration{time.Second}, clock.sleeps)

	again, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k2"}, func(context.Context, *models.JobRun) (any, error) {
		t.Fatal("succeeded runs must not execute again")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, again.Reused)
}

func TestRunFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	_, runner, clock := setup(t)

	calls := 0
	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k3"}, func(context.Context, *models.JobRun) (any, error) {
		calls++
		return nil, errors.New("still broken")
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, enums.JobRunFailed, res.Run.Status)
	assert.Equal(t, 3, res.Run.Attempts)
	require.NotNil(t, res.Run.LastError)
	assert.Equal(t, "still broken", *res.Run.LastError)
	assert.NotNil(t, res.Run.FinishedAt)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestRunRerunsFailedRow(t *testing.T) {
	conn, runner, _ := setup(t)
	lastErr := "old failure"
	failed := models.JobRun{JobName: "check", IdempotencyKey: "k4", Status: enums.JobRunFailed, Attempts: 3, MaxAttempts: 3, LastError: &lastErr}
	require.NoError(t, conn.Create(&failed).Error)

	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k4"}, func(context.Context, *models.JobRun) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, failed.ID, res.Run.ID)
	assert.Equal(t, enums.JobRunSucceeded, res.Run.Status)
	assert.Equal(t, 4, res.Run.Attempts)
}

func TestRunFailedRowGetsSingleAttempt(t *testing.T) {
	conn, runner, clock := setup(t)
	lastErr := "old failure"
	failed := models.JobRun{JobName: "check", IdempotencyKey: "k6", Status: enums.JobRunFailed, Attempts: 3, MaxAttempts: 3, LastError: &lastErr}
	require.NoError(t, conn.Create(&failed).Error)

	calls := 0
	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k6"}, func(context.Context, *models.JobRun) (any, error) {
		calls++
		return nil, errors.New("still broken")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, enums.JobRunFailed, res.Run.Status)
	assert.Equal(t, 4, res.Run.Attempts)
}

func TestRunResumesWithRemainingAttempts(t *testing.T) {
	conn, runner, clock := setup(t)
	interrupted := models.JobRun{JobName: "check", IdempotencyKey: "k7", Status: enums.JobRunPending, Attempts: 1, MaxAttempts: 3}
	require.NoError(t, conn.Create(&interrupted).Error)

	calls := 0
	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k7"}, func(context.Context, *models.JobRun) (any, error) {
		calls++
		return nil, errors.New("still broken")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.sleeps)
	assert.Equal(t, enums.JobRunFailed, res.Run.Status)
	assert.Equal(t, 3, res.Run.Attempts)
}

type lostClaimRepo struct {
	Repository
	conn *gorm.DB
}

// Claim simulates a concurrent runner winning the row first.
func (r lostClaimRepo) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if err := r.conn.Model(&models.JobRun{}).Where("id = ?", id).
		Updates(map[string]any{"status": enums.JobRunRunning, "attempts": 1}).Error; err != nil {
		return false, err
	}
	return r.Repository.Claim(ctx, id, at)
}

func TestRunDefersToConcurrentClaim(t *testing.T) {
	conn := dbtest.Open(t)
	clock := &fakeClock{now: start}
	runner := newRunner(t, lostClaimRepo{Repository: NewRepository(conn), conn: conn}, clock)

	res, err := runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: "k5"}, func(context.Context, *models.JobRun) (any, error) {
		t.Fatal("loser must not execute")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, enums.JobRunRunning, res.Run.Status)
	assert.Equal(t, 1, res.Run.Attempts)
}

func TestRunValidation(t *testing.T) {
	_, runner, _ := setup(t)
	noop := func(context.Context, *models.JobRun) (any, error) { return nil, nil }

	_, err := runner.Run(context.Background(), RunInput{JobName: "check"}, noop)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'k'
	}
	_, err = runner.Run(context.Background(), RunInput{JobName: "check", IdempotencyKey: string(long)}, noop)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBackoff(t *testing.T) {
	_, runner, _ := setup(t)
	assert.Equal(t, time.Second, runner.Backoff(0))
	assert.Equal(t, time.Second, runner.Backoff(1))
	assert.Equal(t, 2*time.Second, runner.Backoff(2))
	assert.Equal(t, 4*time.Second, runner.Backoff(3))
	assert.Equal(t, 5*time.Second, runner.Backoff(4))
	assert.Equal(t, 5*time.Second, runner.Backoff(80))
}
