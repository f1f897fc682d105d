// Command dbcheck inspects and repairs the Postgres metadata store.
//
//	dbcheck                      list keys with sizes and versions
//	dbcheck import DIR [apply]   copy a file-backed store into Postgres
//	dbcheck orphans DIR [apply]  find recordings whose audio is missing
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/database"
	"github.com/voicecoach/voicecoach/internal/recordings"
)

func main() {
	ctx := context.Background()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	db, err := database.Connect(ctx, os.Getenv("DATABASE_URL"), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) > 2 && os.Args[1] == "import" {
		apply := len(os.Args) > 3 && os.Args[3] == "apply"
		if err := importFiles(ctx, db, os.Args[2], !apply); err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(os.Args) > 2 && os.Args[1] == "orphans" {
		apply := len(os.Args) > 3 && os.Args[3] == "apply"
		if err := findOrphans(ctx, db, os.Args[2], !apply); err != nil {
			fmt.Fprintf(os.Stderr, "orphan check failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Default: key listing
	keys, err := db.Keys(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Println("Key                      Bytes    Version  Updated")
	fmt.Println("──────────────────────────────────────────────────────────────")
	for _, k := range keys {
		fmt.Printf("%-24s %-8d %-8d %s\n", k.Key, k.Bytes, k.Version, k.UpdatedAt.Format(time.RFC3339))
	}

	list, err := loadRecordings(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load recordings: %v\n", err)
		os.Exit(1)
	}
	var total int64
	for _, r := range list {
		total += r.Size
	}
	fmt.Printf("\n%d recordings, %s of audio\n", len(list), recordings.FormatSize(total))
}

func loadRecordings(ctx context.Context, db *database.DB) ([]recordings.Recording, error) {
	raw, ok, err := db.Get(ctx, recordings.CollectionKey)
	if err != nil || !ok {
		return nil, err
	}
	var list []recordings.Recording
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
