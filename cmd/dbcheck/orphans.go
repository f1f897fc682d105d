package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/config"
	"github.com/voicecoach/voicecoach/internal/database"
	"github.com/voicecoach/voicecoach/internal/recordings"
	"github.com/voicecoach/voicecoach/internal/storage"
)

// findOrphans lists recordings whose audio object is gone. With dryRun false
// they are dropped from the collection. audioDir is the local audio directory
// used when S3_BUCKET is unset.
func findOrphans(ctx context.Context, db *database.DB, audioDir string, dryRun bool) error {
	var s3cfg config.S3Config
	if err := env.Parse(&s3cfg); err != nil {
		return err
	}
	audio, err := storage.New(s3cfg, audioDir, zerolog.New(os.Stderr))
	if err != nil {
		return err
	}

	list, err := loadRecordings(ctx, db)
	if err != nil {
		return err
	}

	kept, missing, err := partitionOrphans(ctx, audio, list)
	if err != nil {
		return fmt.Errorf("audio check aborted, nothing changed: %w", err)
	}
	for _, r := range missing {
		fmt.Printf("  missing audio: id=%s name=%q uri=%s\n", r.ID, r.Name, r.URI)
	}
	orphans := len(missing)

	if orphans == 0 {
		fmt.Printf("All %d recordings have audio (%s store).\n", len(list), audio.Type())
		return nil
	}
	if dryRun {
		fmt.Printf("\nDry run: %d of %d recordings are orphaned. Re-run with 'apply' to drop them.\n", orphans, len(list))
		return nil
	}

	raw, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	if err := db.Set(ctx, recordings.CollectionKey, raw); err != nil {
		return err
	}
	fmt.Printf("\nDropped %d orphaned recordings.\n", orphans)
	return nil
}

type statter interface {
	Stat(ctx context.Context, key string) (bool, error)
}

// partitionOrphans splits list into recordings with and without audio. Any
// Stat error aborts the whole check so an unreachable backend never marks
// recordings as orphaned.
func partitionOrphans(ctx context.Context, audio statter, list []recordings.Recording) (kept, missing []recordings.Recording, err error) {
	kept = make([]recordings.Recording, 0, len(list))
	for _, r := range list {
		ok, err := audio.Stat(ctx, r.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("recording %s: %w", r.ID, err)
		}
		if ok {
			kept = append(kept, r)
		} else {
			missing = append(missing, r)
		}
	}
	return kept, missing, nil
}
