package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirValidates(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestSnapshotMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_commission_policies_and_snapshots")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS commission_snapshots",
		"CONSTRAINT ux_commission_snapshots_deal_version UNIQUE (deal_id, version)",
		"CONSTRAINT ux_commission_snapshots_idempotency_key UNIQUE (idempotency_key)",
		"CHECK (hunter_amount + consultant_amount + broker_amount + system_amount = pool_amount)",
		"CHECK (hunter_bp + consultant_bp + broker_bp + system_bp = 10000)",
		"DROP TABLE IF EXISTS commission_snapshots",
	}
	for _, sub := range checks {
		assert.Contains(t, content, sub)
	}
}

func TestLedgerAndAuditAreAppendOnly(t *testing.T) {
	ledger := readMigration(t, "create_commission_ledger_and_payouts")
	assert.Contains(t, ledger, "BEFORE UPDATE OR DELETE ON commission_ledger_entries")
	assert.Contains(t, ledger, "CONSTRAINT ux_payable_allocations_snapshot_beneficiary UNIQUE (snapshot_id, beneficiary_user_id)")

	auditJobs := readMigration(t, "create_audit_jobs_and_outbox")
	assert.Contains(t, auditJobs, "BEFORE UPDATE OR DELETE ON audit_logs")
	assert.Contains(t, auditJobs, "CONSTRAINT ux_job_runs_name_key UNIQUE (job_name, idempotency_key)")
}

func TestEveryModelTableHasMigration(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	require.NoError(t, err)

	var all strings.Builder
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join("migrations", e.Name()))
		require.NoError(t, err)
		all.Write(data)
	}
	content := all.String()

	cache := &sync.Map{}
	for _, model := range models.All() {
		parsed, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS "+parsed.Table+" (", "missing table %s", parsed.Table)
	}
}
