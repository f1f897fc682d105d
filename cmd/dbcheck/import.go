package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/voicecoach/voicecoach/internal/database"
	"github.com/voicecoach/voicecoach/internal/recordings"
)

// importFiles copies every key of a file-backed store in dir into kv_store in
// one transaction, creating the schema first. Existing keys are overwritten.
func importFiles(ctx context.Context, db *database.DB, dir string, dryRun bool) error {
	src, err := recordings.NewFileKV(dir)
	if err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	var keys []string
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	if len(keys) == 0 {
		fmt.Printf("No keys found in %s\n", dir)
		return nil
	}

	if !dryRun {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, key := range keys {
		value, ok, err := src.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if !ok {
			continue
		}
		fmt.Printf("  %-24s %d bytes\n", key, len(value))
		if dryRun {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO kv_store (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = now(), version = kv_store.version + 1`,
			key, value); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}

	if dryRun {
		fmt.Printf("\nDry run: %d keys would be imported. Re-run with 'apply' to write.\n", len(keys))
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	fmt.Printf("\nImported %d keys.\n", len(keys))
	return nil
}

