package recordings

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/coach"
)

// Analyzer scores a recording. analyzer.Pipeline implements it.
type Analyzer interface {
	Analyze(ctx context.Context, audio io.Reader) (*coach.Analysis, error)
}

// Publisher is notified of library changes. events.Publisher implements it.
type Publisher interface {
	Publish(event string, payload any)
}

// Event names passed to Publisher.
const (
	EventSaved    = "recording.saved"
	EventAnalyzed = "recording.analyzed"
	EventRenamed  = "recording.renamed"
	EventDeleted  = "recording.deleted"
	EventCleared  = "library.cleared"
)

// Service combines the store with optional analysis and event publishing.
type Service struct {
	store     *Store
	kv        KV
	analyzer  Analyzer
	publisher Publisher
	log       zerolog.Logger
}

// NewService creates a Service. analyzer and publisher may be nil.
func NewService(store *Store, kv KV, analyzer Analyzer, publisher Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		kv:        kv,
		analyzer:  analyzer,
		publisher: publisher,
		log:       log.With().Str("component", "library").Logger(),
	}
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// Import saves localFile as a new recording, analyzing it first when analyze
// is set. A failed analysis is logged and the recording is saved without one.
// A zero duration is filled from the provider's audio duration when known.
func (s *Service) Import(ctx context.Context, localFile string, duration float64, analyze bool) (Recording, error) {
	var resp *coach.Response
	if analyze && s.analyzer != nil {
		a, err := s.analyzeFile(ctx, localFile)
		if err != nil {
			s.log.Warn().Err(err).Str("path", localFile).Msg("analysis failed, saving without it")
		} else {
			r := a.Response()
			resp = &r
			if duration <= 0 {
				duration = a.Duration
			}
		}
	}

	rec, err := s.store.SaveAnalyzed(ctx, localFile, duration, resp)
	if err != nil {
		return Recording{}, err
	}

	s.publish(EventSaved, rec)
	if rec.Analysis != nil {
		s.publish(EventAnalyzed, rec)
	}
	return rec, nil
}

// Reanalyze runs analysis on a stored recording and attaches the result.
func (s *Service) Reanalyze(ctx context.Context, id string) (Recording, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Recording{}, err
	}
	if s.analyzer == nil {
		return Recording{}, errNoAnalyzer
	}

	rc, err := s.store.Audio().Open(ctx, rec.URI)
	if err != nil {
		return Recording{}, err
	}
	defer rc.Close()

	a, err := s.analyzer.Analyze(ctx, rc)
	if err != nil {
		return Recording{}, err
	}
	resp := a.Response()
	if err := s.store.Attach(ctx, id, &resp); err != nil {
		return Recording{}, err
	}
	rec.Analysis = &resp
	s.publish(EventAnalyzed, rec)
	return rec, nil
}

// Rename renames a recording. Unknown ids are a no-op.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	if err := s.store.Rename(ctx, id, name); err != nil {
		return err
	}
	s.publish(EventRenamed, map[string]string{"id": id, "name": name})
	return nil
}

// Delete removes a recording. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(EventDeleted, map[string]string{"id": id})
	return nil
}

// Clear removes every recording.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.publish(EventCleared, map[string]any{})
	return nil
}

// Settings returns the current settings.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return LoadSettings(ctx, s.kv)
}

// UpdateSettings replaces the settings.
func (s *Service) UpdateSettings(ctx context.Context, st Settings) error {
	return SaveSettings(ctx, s.kv, st)
}

func (s *Service) analyzeFile(ctx context.Context, path string) (*coach.Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.analyzer.Analyze(ctx, f)
}

func (s *Service) publish(event string, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(event, payload)
	}
}

// List returns recordings matching q, newest first. An empty q lists all.
func (s *Service) List(ctx context.Context, q string) ([]Recording, error) {
	return s.store.Search(ctx, q)
}

// Get returns one recording or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Recording, error) {
	return s.store.Get(ctx, id)
}

// Stats summarizes library usage.
func (s *Service) Stats(ctx context.Context) (StorageInfo, error) {
	return s.store.Stats(ctx)
}

// OpenAudio returns the recording and a reader for its audio. When the audio
// backend can hand out direct links, url is set and the reader is nil.
func (s *Service) OpenAudio(ctx context.Context, id string) (rec Recording, url string, rc io.ReadCloser, err error) {
	rec, err = s.store.Get(ctx, id)
	if err != nil {
		return Recording{}, "", nil, err
	}
	audio := s.store.Audio()
	url, err = audio.URL(ctx, rec.URI)
	if err != nil {
		return Recording{}, "", nil, err
	}
	if url != "" {
		return rec, url, nil, nil
	}
	rc, err = audio.Open(ctx, rec.URI)
	if err != nil {
		return Recording{}, "", nil, err
	}
	return rec, "", rc, nil
}
