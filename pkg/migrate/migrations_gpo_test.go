package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestGroupOrderMigrationEnforcesActiveKeyUniqueness(t *testing.T) {
	content := readMigration(t, "create_gpo_group_orders")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS gpo_group_orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_gpo_group_orders_active_key",
		"ON gpo_group_orders (group_id, product_name, target_month)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_gpo_intents_active_key",
		"ON gpo_purchase_intents (member_id, product_name, target_month)",
		"WHERE status <> 'cancelled'",
		"CHECK (quantity_units > 0)",
		"'submitted_to_cenabast'",
		"version bigint NOT NULL DEFAULT 1",
		"DROP TABLE IF EXISTS gpo_group_orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFacilitationFeeMigrationIsOnePerOrder(t *testing.T) {
	content := readMigration(t, "create_gpo_facilitation_fees")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS gpo_facilitation_fees",
		"CONSTRAINT ux_gpo_facilitation_fees_order UNIQUE (group_order_id)",
		"CHECK (status IN ('pending', 'invoiced', 'paid'))",
		"DROP TABLE IF EXISTS gpo_facilitation_fees",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSavingsMigrationIsOnePerAllocation(t *testing.T) {
	content := readMigration(t, "create_gpo_savings_records")

	for _, sub := range []string{
		"CONSTRAINT ux_gpo_savings_records_allocation UNIQUE (allocation_id)",
		"CHECK (total_savings >= 0)",
		"DROP TABLE IF EXISTS gpo_savings_records",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestGroupsMigrationConstrainsFeeRate(t *testing.T) {
	content := readMigration(t, "create_gpo_groups")
	require.Contains(t, content, "CONSTRAINT ux_gpo_groups_slug UNIQUE (slug)")
	require.Contains(t, content, "facilitation_fee_rate >= 0 AND facilitation_fee_rate <= 1")
}

func TestMigrationsDirectoryIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Supplier Name!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_supplier_name.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestDialectFor(t *testing.T) {
	require.Equal(t, "sqlite3", migrate.DialectFor(config.DBConfig{Driver: "sqlite"}))
	require.Equal(t, "postgres", migrate.DialectFor(config.DBConfig{Driver: "postgres"}))
}

func TestCreateSQLMigrationOrdersAfterNewestFile(t *testing.T) {
	dir := t.TempDir()
	future := filepath.Join(dir, "29991231235959_far_future.sql")
	require.NoError(t, os.WriteFile(future, []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	path, err := migrate.CreateSQLMigration(dir, "next step")
	require.NoError(t, err)
	require.Equal(t, "29991231235960_next_step.sql", filepath.Base(path))

	files, err := migrate.ListDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "next_step", files[1].Name)
}

func TestValidateDirRejectsBrokenFiles(t *testing.T) {
	cases := map[string]string{
		"20260101000000_no_down.sql":    "-- +goose Up\nSELECT 1;\n",
		"20260101000000_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"20260101000000_reversed.sql":   "-- +goose Down\n-- +goose Up\n",
		"bad-name.sql":                  "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range cases {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
		require.Error(t, migrate.ValidateDir(dir), name)
	}
}
