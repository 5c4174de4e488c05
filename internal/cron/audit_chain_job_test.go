package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

type stubVerifier struct {
	report audit.IntegrityReport
	err    error
	limit  int
}

func (s *stubVerifier) IntegrityReport(_ context.Context, limit int) (audit.IntegrityReport, error) {
	s.limit = limit
	return s.report, s.err
}

func TestAuditChainJobWarnsOnFindingsWithoutFailing(t *testing.T) {
	var out bytes.Buffer
	verifier := &stubVerifier{report: audit.IntegrityReport{
		OK:             false,
		Checked:        12,
		FirstID:        1,
		LastID:         12,
		MismatchedRows: []int64{7},
		BrokenPrevRows: []int64{8},
	}}
	job, err := NewAuditChainJob(AuditChainJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: &out}),
		Verifier: verifier,
		Window:   500,
	})
	require.NoError(t, err)
	assert.Equal(t, AuditChainJobName, job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 500, verifier.limit)
	assert.Contains(t, out.String(), `"level":"warn"`)
	assert.Contains(t, out.String(), `"mismatched_rows":1`)
}

func TestAuditChainJobReportsLoadErrors(t *testing.T) {
	job, err := NewAuditChainJob(AuditChainJobParams{
		Logger:   testLogger(),
		Verifier: &stubVerifier{err: errors.New("db down")},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}
