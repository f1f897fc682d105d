package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// KeyInfo describes one kv_store row without its value.
type KeyInfo struct {
	Key       string
	Bytes     int
	Version   int64
	UpdatedAt time.Time
}

// Get returns the JSON value stored under key. ok is false when the key has
// never been written.
func (db *DB) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	err = db.Pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the JSON value stored under key and bumps its version.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now(), version = kv_store.version + 1`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in key order.
func (db *DB) Keys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT key, octet_length(value::text), version, updated_at
		FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (KeyInfo, error) {
		var k KeyInfo
		err := row.Scan(&k.Key, &k.Bytes, &k.Version, &k.UpdatedAt)
		return k, err
	})
}
