// Package inbox watches a directory for audio files dropped in by other
// tools and adds them to the recording library.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/metrics"
	"github.com/voicecoach/voicecoach/internal/recordings"
)

// Importer adds a file to the library. recordings.Service implements it.
type Importer interface {
	Import(ctx context.Context, localFile string, duration float64, analyze bool) (recordings.Recording, error)
	Rename(ctx context.Context, id, name string) error
}

// Sidecar is the optional "<file>.json" written next to an audio file.
// Analyze defaults to true.
type Sidecar struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
	Analyze  *bool   `json:"analyze,omitempty"`
}

// failedSuffix is appended to files that could not be imported so they are
// not picked up again.
const failedSuffix = ".failed"

const defaultDebounce = 500 * time.Millisecond

// Status is the watcher state reported by the health endpoint.
type Status struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesFailed    int64  `json:"files_failed"`
}

// Watcher imports audio files that appear in a directory. Files already
// present at Start are imported oldest first.
type Watcher struct {
	importer Importer
	dir      string
	log      zerolog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Coalesces Create+Write bursts on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Imports run one at a time to keep provider load bounded.
	importMu sync.Mutex

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
	status         atomic.Value // "starting", "backfilling", "watching", "stopped"
}

// New creates a watcher for dir. Call Start to begin.
func New(importer Importer, dir string, log zerolog.Logger) *Watcher {
	w := &Watcher{
		importer:       importer,
		dir:            dir,
		log:            log.With().Str("component", "inbox").Logger(),
		debounce:       defaultDebounce,
		debounceTimers: make(map[string]*time.Timer),
	}
	w.status.Store("starting")
	return w
}

// Start creates the directory if needed, begins watching it, and imports any
// files already there in the background.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.log.Info().Str("watch_dir", w.dir).Msg("inbox watcher initialized")

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.watchLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.backfill()
	}()
	return nil
}

// Stop closes the watcher and waits for in-flight imports.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	w.wg.Wait()
	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_failed", w.filesFailed.Load()).
		Msg("inbox watcher stopped")
}

// Status returns a snapshot of the watcher state.
func (w *Watcher) Status() Status {
	s, _ := w.status.Load().(string)
	return Status{
		Status:         s,
		WatchDir:       w.dir,
		FilesProcessed: w.filesProcessed.Load(),
		FilesFailed:    w.filesFailed.Load(),
	}
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !candidate(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule debounces processing so the file is fully written before it is read.
func (w *Watcher) schedule(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if t, ok := w.debounceTimers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.debounceMu.Lock()
		if w.debounceTimers[path] == t {
			delete(w.debounceTimers, path)
		}
		w.debounceMu.Unlock()

		w.process(path)
	})
	w.debounceTimers[path] = t
}

// process imports one file. Failed files are renamed with failedSuffix.
func (w *Watcher) process(path string) {
	if w.ctx.Err() != nil {
		return
	}
	w.importMu.Lock()
	defer w.importMu.Unlock()

	// Already handled by backfill or a previous event.
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return
	}

	log := w.log.With().Str("path", path).Logger()

	meta := readSidecar(path, log)
	analyze := meta.Analyze == nil || *meta.Analyze
	rec, err := w.importer.Import(w.ctx, path, meta.Duration, analyze)
	if err != nil {
		w.filesFailed.Add(1)
		metrics.InboxFilesTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("failed to import inbox file")
		if rerr := os.Rename(path, path+failedSuffix); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to mark inbox file as failed")
		}
		return
	}

	if meta.Name != "" {
		if err := w.importer.Rename(w.ctx, rec.ID, meta.Name); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("failed to apply sidecar name")
		}
	}
	if err := os.Remove(sidecarPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to remove sidecar")
	}

	w.filesProcessed.Add(1)
	metrics.InboxFilesTotal.WithLabelValues("imported").Inc()
	log.Info().Str("id", rec.ID).Bool("analyzed", rec.Analysis != nil).Msg("inbox file imported")
}

// backfill imports files that were already in the directory, oldest first.
func (w *Watcher) backfill() {
	w.status.Store("backfilling")

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to list inbox")
	}

	type fileEntry struct {
		path string
		mod  time.Time
	}
	var files []fileEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !candidate(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{path: path, mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	if len(files) > 0 {
		w.log.Info().Int("files", len(files)).Msg("importing existing inbox files")
	}
	for _, f := range files {
		if w.ctx.Err() != nil {
			return
		}
		w.process(f.path)
	}
	if w.ctx.Err() == nil {
		w.status.Store("watching")
	}
}

// candidate reports whether path looks like a finished audio file.
func candidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return recordings.IsAudioFile(base)
}

func sidecarPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
}

// readSidecar returns the zero Sidecar when the file is missing or malformed.
func readSidecar(audioPath string, log zerolog.Logger) Sidecar {
	var meta Sidecar
	path := sidecarPath(audioPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("sidecar", path).Msg("failed to read sidecar, ignoring it")
		}
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Warn().Err(err).Str("sidecar", path).Msg("malformed sidecar, ignoring name and duration")
		return Sidecar{}
	}
	if meta.Duration < 0 {
		meta.Duration = 0
	}
	return meta
}
