package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

const AuditChainJobName = "audit-chain-verify"

type chainVerifier interface {
	IntegrityReport(ctx context.Context, limit int) (audit.IntegrityReport, error)
}

// AuditChainJobParams configure the audit chain verification job.
type AuditChainJobParams struct {
	Logger   *logger.Logger
	Verifier chainVerifier
	Window   int
}

// NewAuditChainJob verifies the most recent audit window every cycle. Chain
// findings are logged and exported as metrics; they never fail the job.
func NewAuditChainJob(params AuditChainJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("audit verifier required")
	}
	return &auditChainJob{
		logg:     params.Logger,
		verifier: params.Verifier,
		window:   params.Window,
	}, nil
}

type auditChainJob struct {
	logg     *logger.Logger
	verifier chainVerifier
	window   int
}

func (j *auditChainJob) Name() string { return AuditChainJobName }

func (j *auditChainJob) Run(ctx context.Context) error {
	report, err := j.verifier.IntegrityReport(ctx, j.window)
	if err != nil {
		return fmt.Errorf("verify audit chain: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":           report.Checked,
		"first_id":          report.FirstID,
		"last_id":           report.LastID,
		"mismatched_rows":   len(report.MismatchedRows),
		"broken_prev_rows":  len(report.BrokenPrevRows),
		"missing_hash_rows": len(report.MissingHashRows),
	})
	if !report.OK {
		j.logg.Warn(logCtx, "audit chain findings detected")
		return nil
	}
	j.logg.Info(logCtx, "audit chain verified")
	return nil
}
