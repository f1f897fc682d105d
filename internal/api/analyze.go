package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/voicecoach/voicecoach/internal/analyzer"
	"github.com/voicecoach/voicecoach/internal/coach"
)

// Analyzer runs the transcription and scoring pipeline on one recording.
type Analyzer interface {
	Analyze(ctx context.Context, audio io.Reader) (*coach.Analysis, error)
}

// AnalyzeHandler serves POST /analyze.
type AnalyzeHandler struct {
	analyzer  Analyzer
	uploadDir string
	maxBytes  int64

	// removeFile deletes the request's temp file. Replaced in tests.
	removeFile func(string) error
}

// NewAnalyzeHandler creates the handler. Uploaded audio is staged in uploadDir.
func NewAnalyzeHandler(a Analyzer, uploadDir string, maxBytes int64) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:   a,
		uploadDir:  uploadDir,
		maxBytes:   maxBytes,
		removeFile: os.Remove,
	}
}

// Routes registers the analyze endpoint.
func (h *AnalyzeHandler) Routes(r chi.Router) {
	r.Post("/analyze", h.Analyze)
}

// Analyze handles POST /analyze with the recording in multipart field "audio".
// Every failure, including a missing field, is a 500 with {"error": ...}.
// The staged temp file is removed exactly once on every path.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	path, err := receiveAudio(r, "audio", h.uploadDir, h.maxBytes)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		log.Warn().Err(err).Msg("analyze upload rejected")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer h.cleanup(path, log)

	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open staged audio")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	a, err := h.analyzer.Analyze(r.Context(), f)
	if err != nil {
		ev := log.Error().Err(err)
		var se *analyzer.StageError
		if errors.As(err, &se) {
			ev = ev.Str("stage", string(se.Stage))
		}
		ev.Msg("analysis failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().
		Int("confidence", a.Confidence).
		Int("fillers", a.FillerCount).
		Float64("wpm", a.SpeakingRate).
		Int("tips", len(a.Tips)).
		Msg("analysis complete")
	WriteJSON(w, http.StatusOK, a.Response())
}

func (h *AnalyzeHandler) cleanup(path string, log *zerolog.Logger) {
	if err := h.removeFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove staged audio")
	}
}
