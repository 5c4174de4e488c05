package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
	maxKeyLength       = 200
)

// Func is the unit of work a run executes. Its result is stored as JSON.
type Func func(ctx context.Context, run *models.JobRun) (any, error)

// RunInput identifies one execution. MaxAttempts <= 0 uses the runner default.
type RunInput struct {
	JobName        string
	IdempotencyKey string
	Input          any
	MaxAttempts    int
}

// RunResult is returned to callers. Reused is true when this call did not
// execute the work.
type RunResult struct {
	Reused bool           `json:"reused"`
	Run    *models.JobRun `json:"run"`
}

// RunnerParams configure a Runner. Sleep and Now are injectable for tests.
type RunnerParams struct {
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.JobRunMetrics
	Config  config.JobsConfig
	Sleep   func(ctx context.Context, d time.Duration) error
	Now     func() time.Time
}

// Runner executes idempotent jobs with claim-and-retry semantics.
type Runner struct {
	repo        Repository
	logg        *logger.Logger
	metrics     *metrics.JobRunMetrics
	maxAttempts int
	base        time.Duration
	cap         time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	clock       func() time.Time
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("job repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	r := &Runner{
		repo:        params.Repo,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: params.Config.MaxAttempts,
		base:        params.Config.BackoffBase,
		cap:         params.Config.BackoffMax,
		sleep:       params.Sleep,
		clock:       params.Now,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.base <= 0 {
		r.base = defaultBackoffBase
	}
	if r.cap <= 0 {
		r.cap = defaultBackoffMax
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns min(base * 2^(attempt-1), cap).
func (r *Runner) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.base
	for i := 1; i < attempt; i++ {
		if delay >= r.cap/2 {
			return r.cap
		}
		delay *= 2
	}
	if delay > r.cap {
		return r.cap
	}
	return delay
}

func (r *Runner) now() time.Time {
	return models.Timestamp(r.clock())
}

// Run executes fn at most once per successful (job, key). Runs already
// SUCCEEDED or RUNNING are returned unchanged. Retries back off in the
// caller's goroutine and stop when ctx is done.
func (r *Runner) Run(ctx context.Context, input RunInput, fn Func) (RunResult, error) {
	name := strings.TrimSpace(input.JobName)
	key := strings.TrimSpace(input.IdempotencyKey)
	if name == "" || key == "" {
		return RunResult{}, pkgerrors.New(pkgerrors.CodeValidation, "job name and idempotency key are required")
	}
	if len(key) > maxKeyLength {
		return RunResult{}, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is too long")
	}
	if fn == nil {
		return RunResult{}, fmt.Errorf("job function required")
	}
	ctx = r.logg.WithJob(ctx, name, key)

	run, err := r.repo.Find(ctx, name, key)
	if err != nil {
		return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job run")
	}
	if run != nil && run.Status.IsReusable() {
		r.metrics.IncAttempt(name, "reused")
		return RunResult{Reused: true, Run: run}, nil
	}
	if run == nil {
		run, err = r.create(ctx, name, key, input)
		if err != nil {
			return RunResult{}, err
		}
		if run.Status.IsReusable() {
			r.metrics.IncAttempt(name, "reused")
			return RunResult{Reused: true, Run: run}, nil
		}
	}

	budget := r.budget(run)
	for attempt := 1; ; attempt++ {
		claimed, err := r.repo.Claim(ctx, run.ID, r.now())
		if err != nil {
			return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim job run")
		}
		if !claimed {
			current, err := r.reload(ctx, run)
			if err != nil {
				return RunResult{}, err
			}
			r.logg.Info(r.logg.WithField(ctx, "status", string(current.Status)), "job run claimed elsewhere")
			return RunResult{Reused: true, Run: current}, nil
		}
		if run, err = r.reload(ctx, run); err != nil {
			return RunResult{}, err
		}

		out, runErr := fn(ctx, run)
		if runErr == nil {
			result, err := encode(out)
			if err != nil {
				runErr = fmt.Errorf("encode job result: %w", err)
			} else {
				if err := r.repo.Succeed(ctx, run.ID, result, r.now()); err != nil {
					return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete job run")
				}
				r.metrics.IncAttempt(name, "succeeded")
				r.logg.Info(r.logg.WithField(ctx, "attempts", run.Attempts), "job run succeeded")
				run, err = r.reload(ctx, run)
				return RunResult{Run: run}, err
			}
		}

		attemptCtx := r.logg.WithField(ctx, "attempt", run.Attempts)
		if attempt >= budget {
			if err := r.repo.Fail(ctx, run.ID, runErr.Error(), r.now()); err != nil {
				return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail job run")
			}
			r.metrics.IncAttempt(name, "failed")
			r.logg.Error(attemptCtx, "job run failed permanently", runErr)
			run, err = r.reload(ctx, run)
			return RunResult{Run: run}, err
		}

		delay := r.Backoff(run.Attempts)
		if err := r.repo.Retry(ctx, run.ID, runErr.Error(), r.now().Add(delay)); err != nil {
			return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule job retry")
		}
		r.metrics.IncAttempt(name, "retried")
		r.logg.Warn(r.logg.WithFields(attemptCtx, map[string]any{
			"backoff_ms": delay.Milliseconds(),
			"error":      runErr.Error(),
		}), "job run attempt failed; retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return RunResult{}, err
		}
	}
}

// budget is how many attempts this call may execute. It counts down from the
// attempts already stored on the row, and a row that has spent them all gets
// a single attempt without backoff.
func (r *Runner) budget(run *models.JobRun) int {
	maxAttempts := run.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}
	if left := maxAttempts - run.Attempts; left > 1 {
		return left
	}
	return 1
}

func (r *Runner) create(ctx context.Context, name, key string, input RunInput) (*models.JobRun, error) {
	encoded, err := encode(input.Input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode job input")
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}
	run := &models.JobRun{
		JobName:        name,
		IdempotencyKey: key,
		Status:         enums.JobRunPending,
		MaxAttempts:    maxAttempts,
		Input:          encoded,
	}
	if err := r.repo.Create(ctx, run); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job run")
		}
		existing, findErr := r.repo.Find(ctx, name, key)
		if findErr != nil || existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job run")
		}
		return existing, nil
	}
	return run, nil
}

func (r *Runner) reload(ctx context.Context, run *models.JobRun) (*models.JobRun, error) {
	current, err := r.repo.FindByID(ctx, run.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload job run")
	}
	if current == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job run not found")
	}
	return current, nil
}

func encode(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}
