package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded(), embeddedDir))
}

func TestCreateSQLMigrationWritesAnnotatedFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 2, 8, 30, 15, 0, time.UTC)

	path, err := CreateSQLMigration(dir, " Add Payout Reference! ", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260702083015_add_payout_reference.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "add payout reference", now)
	assert.Error(t, err)

	_, err = CreateSQLMigration(dir, "!!!", now)
	assert.Error(t, err)
}

func TestValidateFSRejectsBrokenFiles(t *testing.T) {
	valid := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\n"

	cases := map[string]fstest.MapFS{
		"bad name":       {"create_users.sql": {Data: []byte(valid)}},
		"missing down":   {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n")}},
		"unbalanced":     {"20260101000000_a.sql": {Data: []byte(valid + "-- +goose StatementBegin\n")}},
		"down before up": {"20260101000000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"duplicate": {
			"20260101000000_a.sql": {Data: []byte(valid)},
			"20260101000000_b.sql": {Data: []byte(valid)},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateFS(fsys, "."))
		})
	}

	assert.NoError(t, ValidateFS(fstest.MapFS{"20260101000000_a.sql": {Data: []byte(valid)}}, "."))
	assert.Error(t, ValidateDir(filepath.Join(os.TempDir(), "brokerledger-missing-migrations")))
}
