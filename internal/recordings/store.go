package recordings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/coach"
	"github.com/voicecoach/voicecoach/internal/storage"
)

// Store is the recording library. Mutations are serialized; every error from
// the KV or audio backend is returned to the caller.
type Store struct {
	kv    KV
	audio storage.AudioStore
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.Mutex
	lastID int64
}

// NewStore creates a Store over the given backends.
func NewStore(kv KV, audio storage.AudioStore, log zerolog.Logger) *Store {
	return &Store{
		kv:    kv,
		audio: audio,
		log:   log.With().Str("component", "recordings").Logger(),
		now:   time.Now,
	}
}

// List returns all recordings, newest first.
func (s *Store) List(ctx context.Context) ([]Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Search returns recordings whose name contains q, case-insensitively.
// An empty query returns everything.
func (s *Store) Search(ctx context.Context, q string) ([]Recording, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return all, nil
	}
	out := []Recording{}
	for _, r := range all {
		if strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns one recording or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Recording, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Recording{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save moves localFile into the audio store and prepends a new recording.
// The local file is removed once the recording is persisted.
func (s *Store) Save(ctx context.Context, localFile string, duration float64) (Recording, error) {
	return s.save(ctx, localFile, duration, nil)
}

// SaveAnalyzed is Save with an analysis attached in the same write.
func (s *Store) SaveAnalyzed(ctx context.Context, localFile string, duration float64, analysis *coach.Response) (Recording, error) {
	return s.save(ctx, localFile, duration, analysis)
}

func (s *Store) save(ctx context.Context, localFile string, duration float64, analysis *coach.Response) (Recording, error) {
	data, err := os.ReadFile(localFile)
	if err != nil {
		return Recording{}, fmt.Errorf("read recording: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(localFile))
	if ext == "" {
		ext = ".m4a"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Recording{}, err
	}

	created := s.now()
	id := s.nextID(created, list)
	key := "recording_" + id + ext

	if err := s.audio.Save(ctx, key, data, ContentType(key)); err != nil {
		return Recording{}, fmt.Errorf("store audio: %w", err)
	}

	rec := Recording{
		ID:        id,
		Name:      "Recording " + created.Format("1/2/2006 3:04:05 PM"),
		URI:       key,
		Duration:  duration,
		CreatedAt: created.UTC().Format("2006-01-02T15:04:05.000Z"),
		Size:      int64(len(data)),
		Analysis:  analysis,
	}

	list = append([]Recording{rec}, list...)
	if err := s.persist(ctx, list); err != nil {
		if derr := s.audio.Delete(ctx, key); derr != nil {
			s.log.Warn().Err(derr).Str("key", key).Msg("failed to roll back stored audio")
		}
		return Recording{}, err
	}

	if err := os.Remove(localFile); err != nil {
		s.log.Warn().Err(err).Str("path", localFile).Msg("failed to remove source file after save")
	}

	s.log.Info().Str("id", rec.ID).Int64("size", rec.Size).Float64("duration", duration).Msg("recording saved")
	return rec, nil
}

// Delete removes the recording with id and its audio. Unknown ids are a no-op.
// The relative order of the remaining recordings is preserved.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return nil
	}

	if err := s.audio.Delete(ctx, list[idx].URI); err != nil {
		return fmt.Errorf("delete audio: %w", err)
	}

	out := make([]Recording, 0, len(list)-1)
	out = append(out, list[:idx]...)
	out = append(out, list[idx+1:]...)
	if err := s.persist(ctx, out); err != nil {
		return err
	}

	s.log.Info().Str("id", id).Msg("recording deleted")
	return nil
}

// Rename sets the display name. Unknown ids are a no-op and nothing is written.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	return s.update(ctx, id, func(r *Recording) { r.Name = name })
}

// Attach stores an analysis on an existing recording. Unknown ids are a no-op.
func (s *Store) Attach(ctx context.Context, id string, analysis *coach.Response) error {
	return s.update(ctx, id, func(r *Recording) { r.Analysis = analysis })
}

// Clear deletes every recording and its audio.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}

	// Drop entries as their audio goes so a partial failure leaves a
	// consistent collection behind.
	remaining := list
	for len(remaining) > 0 {
		if err := s.audio.Delete(ctx, remaining[0].URI); err != nil {
			if perr := s.persist(ctx, remaining); perr != nil {
				s.log.Error().Err(perr).Msg("failed to persist partial clear")
			}
			return fmt.Errorf("delete audio: %w", err)
		}
		remaining = remaining[1:]
	}

	if err := s.persist(ctx, []Recording{}); err != nil {
		return err
	}
	s.log.Info().Int("deleted", len(list)).Msg("library cleared")
	return nil
}

// Stats summarizes the library.
func (s *Store) Stats(ctx context.Context) (StorageInfo, error) {
	n, total, err := s.Totals(ctx)
	if err != nil {
		return StorageInfo{}, err
	}
	return StorageInfo{
		TotalRecordings: n,
		TotalBytes:      total,
		StorageUsed:     FormatSize(total),
	}, nil
}

// Totals returns the recording count and their combined size.
func (s *Store) Totals(ctx context.Context) (int, int64, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, r := range list {
		total += r.Size
	}
	return len(list), total, nil
}

// Audio returns the audio backend recordings are stored in.
func (s *Store) Audio() storage.AudioStore { return s.audio }

func (s *Store) update(ctx context.Context, id string, fn func(*Recording)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return nil
	}
	fn(&list[idx])
	return s.persist(ctx, list)
}

// load reads the collection. Caller holds mu.
func (s *Store) load(ctx context.Context) ([]Recording, error) {
	raw, ok, err := s.kv.Get(ctx, CollectionKey)
	if err != nil {
		return nil, fmt.Errorf("load recordings: %w", err)
	}
	list := []Recording{}
	if !ok || len(raw) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode recordings: %w", err)
	}
	if list == nil {
		list = []Recording{}
	}
	return list, nil
}

// persist writes the collection. Caller holds mu.
func (s *Store) persist(ctx context.Context, list []Recording) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode recordings: %w", err)
	}
	if err := s.kv.Set(ctx, CollectionKey, raw); err != nil {
		return fmt.Errorf("save recordings: %w", err)
	}
	return nil
}

// nextID returns a millisecond-timestamp id, bumped past any id already
// issued by this process or present in list. Caller holds mu.
func (s *Store) nextID(now time.Time, list []Recording) string {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	for indexOf(list, strconv.FormatInt(id, 10)) >= 0 {
		id++
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func indexOf(list []Recording, id string) int {
	for i, r := range list {
		if r.ID == id {
			return i
		}
	}
	return -1
}
