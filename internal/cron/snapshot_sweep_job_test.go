package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brokerledger/internal/jobs"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
)

type stubLister struct {
	ids   []uuid.UUID
	since time.Time
	limit int
}

func (s *stubLister) ListTouchedSince(_ context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	s.since = since
	s.limit = limit
	return s.ids, nil
}

type stubTrigger struct {
	inputs  []jobs.TriggerInput
	actors  []auth.Actor
	results map[uuid.UUID]jobs.RunResult
	errs    map[uuid.UUID]error
}

func (s *stubTrigger) Trigger(_ context.Context, actor auth.Actor, input jobs.TriggerInput) (jobs.RunResult, error) {
	s.inputs = append(s.inputs, input)
	s.actors = append(s.actors, actor)
	if err := s.errs[input.SnapshotID]; err != nil {
		return jobs.RunResult{}, err
	}
	return s.results[input.SnapshotID], nil
}

func succeededRun(result string) jobs.RunResult {
	return jobs.RunResult{Run: &models.JobRun{Status: enums.JobRunSucceeded, Result: &result}}
}

func TestSnapshotSweepTriggersDailyKeysAsSystem(t *testing.T) {
	healthy, broken, seen := uuid.New(), uuid.New(), uuid.New()
	lister := &stubLister{ids: []uuid.UUID{healthy, broken, seen}}
	trigger := &stubTrigger{results: map[uuid.UUID]jobs.RunResult{
		healthy: succeededRun(`{"ok":true}`),
		broken:  succeededRun(`{"ok":false}`),
		seen:    {Reused: true},
	}}
	job, err := NewSnapshotSweepJob(SnapshotSweepJobParams{
		Logger:    testLogger(),
		Snapshots: lister,
		Trigger:   trigger,
		Lookback:  6 * time.Hour,
		BatchSize: 25,
	})
	require.NoError(t, err)
	now := time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)
	job.(*snapshotSweepJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-6*time.Hour), lister.since)
	assert.Equal(t, 25, lister.limit)
	require.Len(t, trigger.inputs, 3)
	assert.Equal(t, "snapshot-integrity:"+healthy.String()+":2026-05-04", trigger.inputs[0].IdempotencyKey)
	for _, actor := range trigger.actors {
		assert.True(t, actor.IsSystem())
	}
}

func TestSnapshotSweepContinuesPastErrors(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	trigger := &stubTrigger{
		results: map[uuid.UUID]jobs.RunResult{second: succeededRun(`{"ok":true}`)},
		errs:    map[uuid.UUID]error{first: errors.New("db down")},
	}
	job, err := NewSnapshotSweepJob(SnapshotSweepJobParams{
		Logger:    testLogger(),
		Snapshots: &stubLister{ids: []uuid.UUID{first, second}},
		Trigger:   trigger,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), first.String())
	assert.Len(t, trigger.inputs, 2)
}

func TestSweepKeyUsesUTCDate(t *testing.T) {
	id := uuid.MustParse("6f1c2a4e-8d43-4c1b-9f3a-2b7e5d9c0a11")
	at := time.Date(2026, 5, 4, 22, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, "snapshot-integrity:6f1c2a4e-8d43-4c1b-9f3a-2b7e5d9c0a11:2026-05-05", SweepKey(id, at))
	assert.False(t, integrityOK(nil))
	assert.False(t, integrityOK(ptr("not json")))
}

func ptr(s string) *string { return &s }
