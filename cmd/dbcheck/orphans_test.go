package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicecoach/voicecoach/internal/recordings"
	"github.com/voicecoach/voicecoach/internal/storage"
)

type flakyStore struct {
	present map[string]bool
	err     error
}

func (f flakyStore) Stat(ctx context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.present[key], nil
}

func TestPartitionOrphans(t *testing.T) {
	list := []recordings.Recording{
		{ID: "3", URI: "recording_3.m4a"},
		{ID: "2", URI: "recording_2.m4a"},
		{ID: "1", URI: "recording_1.m4a"},
	}

	t.Run("splits_preserving_order", func(t *testing.T) {
		dir := t.TempDir()
		audio := storage.NewLocalStore(dir)
		for _, k := range []string{"recording_3.m4a", "recording_1.m4a"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte("x"), 0o644))
		}

		kept, missing, err := partitionOrphans(context.Background(), audio, list)
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "1"}, ids(kept))
		assert.Equal(t, []string{"2"}, ids(missing))
	})

	t.Run("backend_error_aborts", func(t *testing.T) {
		outage := errors.New("503 service unavailable")
		kept, missing, err := partitionOrphans(context.Background(), flakyStore{err: outage}, list)
		require.ErrorIs(t, err, outage)
		assert.Nil(t, kept)
		assert.Nil(t, missing)
	})
}

func ids(list []recordings.Recording) []string {
	out := []string{}
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}
