package database

import (
	"context"
	"fmt"
	"strings"
)

// migrationLockID serializes Migrate across processes sharing one database.
const migrationLockID = 0x766f6963 // "voic"

type migration struct {
	name  string
	sql   string
	check string // returns true when already applied
}

// Applied in order; every statement is safe to run twice.
var migrations = []migration{
	{
		name: "create kv_store",
		sql: `CREATE TABLE IF NOT EXISTS kv_store (
			key        text PRIMARY KEY,
			value      jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		check: `SELECT to_regclass('public.kv_store') IS NOT NULL`,
	},
	{
		name:  "add kv_store.version",
		sql:   `ALTER TABLE kv_store ADD COLUMN IF NOT EXISTS version bigint NOT NULL DEFAULT 1`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'kv_store' AND column_name = 'version')`,
	},
	{
		name:  "index kv_store.updated_at",
		sql:   `CREATE INDEX IF NOT EXISTS kv_store_updated_at_idx ON kv_store (updated_at DESC)`,
		check: `SELECT to_regclass('public.kv_store_updated_at_idx') IS NOT NULL`,
	},
}

// Migrate applies pending migrations under a session advisory lock. A failed
// statement returns a *MigrationError carrying the SQL still to be run; the
// caller should treat it as fatal.
func (db *DB) Migrate(ctx context.Context) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID); err != nil {
			db.log.Warn().Err(err).Msg("failed to release migration lock")
		}
	}()

	var pending []migration
	for _, m := range migrations {
		var done bool
		if err := conn.QueryRow(ctx, m.check).Scan(&done); err == nil && done {
			continue
		}
		pending = append(pending, m)
	}

	for i, m := range pending {
		if _, err := conn.Exec(ctx, m.sql); err != nil {
			return &MigrationError{failed: m, pending: pending[i:], err: err}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
	}
	if len(pending) > 0 {
		db.log.Info().Int("applied", len(pending)).Msg("schema up to date")
	}
	return nil
}

// MigrationError reports a failed migration together with the SQL an
// operator can run by hand.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Apply the remaining schema as a role that owns kv_store:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart voicecoach.")
	return b.String()
}

func (e *MigrationError) Unwrap() error { return e.err }
