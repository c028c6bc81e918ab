// Package dbtest opens isolated in-memory sqlite databases carrying the GPO
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS gpo_groups (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  tier TEXT,
  facilitation_fee_rate TEXT NOT NULL,
  min_aggregation_threshold INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS gpo_members (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL REFERENCES gpo_groups(id),
  user_id TEXT,
  institution_name TEXT NOT NULL,
  institution_type TEXT NOT NULL,
  rut TEXT,
  contact_name TEXT,
  contact_email TEXT,
  contact_phone TEXT,
  role TEXT NOT NULL DEFAULT 'member',
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_gpo_members_group_user ON gpo_members (group_id, user_id) WHERE user_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS gpo_product_thresholds (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL REFERENCES gpo_groups(id),
  product_name TEXT NOT NULL,
  threshold INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (group_id, product_name)
);`,
	`CREATE TABLE IF NOT EXISTS gpo_group_orders (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL REFERENCES gpo_groups(id),
  product_name TEXT NOT NULL,
  target_month TEXT NOT NULL,
  total_quantity INTEGER NOT NULL,
  member_count INTEGER NOT NULL,
  unit_price_group INTEGER,
  unit_price_market INTEGER,
  facilitation_fee_rate TEXT NOT NULL,
  facilitation_fee INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  confirmed_at DATETIME,
  fulfilled_at DATETIME,
  distributed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_gpo_group_orders_active_key ON gpo_group_orders (group_id, product_name, target_month) WHERE status <> 'cancelled';`,
	`CREATE TABLE IF NOT EXISTS gpo_purchase_intents (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL REFERENCES gpo_groups(id),
  member_id TEXT NOT NULL REFERENCES gpo_members(id),
  product_name TEXT NOT NULL,
  quantity_units INTEGER NOT NULL CHECK (quantity_units > 0),
  target_month TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'submitted',
  group_order_id TEXT REFERENCES gpo_group_orders(id),
  notes TEXT,
  cancelled_at DATETIME,
  fulfilled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_gpo_intents_active_key ON gpo_purchase_intents (member_id, product_name, target_month) WHERE status <> 'cancelled';`,
	`CREATE TABLE IF NOT EXISTS gpo_member_allocations (
  id TEXT PRIMARY KEY,
  group_order_id TEXT NOT NULL REFERENCES gpo_group_orders(id),
  member_id TEXT NOT NULL REFERENCES gpo_members(id),
  intent_id TEXT NOT NULL REFERENCES gpo_purchase_intents(id),
  quantity_allocated INTEGER NOT NULL,
  unit_price INTEGER,
  subtotal INTEGER NOT NULL DEFAULT 0,
  facilitation_fee INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS gpo_savings_records (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  member_id TEXT NOT NULL,
  group_order_id TEXT NOT NULL,
  allocation_id TEXT NOT NULL UNIQUE,
  quantity_allocated INTEGER NOT NULL,
  unit_price_market INTEGER NOT NULL,
  unit_price_group INTEGER NOT NULL,
  market_cost INTEGER NOT NULL,
  group_cost INTEGER NOT NULL,
  total_savings INTEGER NOT NULL CHECK (total_savings >= 0),
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS gpo_facilitation_fees (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  group_order_id TEXT NOT NULL UNIQUE,
  order_total INTEGER NOT NULL,
  fee_rate TEXT NOT NULL,
  fee_amount INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns a fresh in-memory database with the GPO schema applied. The
// pool is pinned to one connection so concurrent callers queue instead of
// failing with table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
