package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/voicecoach/voicecoach/internal/recordings"
	"github.com/voicecoach/voicecoach/internal/storage"
)

// Library is the recording library as used by the HTTP layer.
// recordings.Service implements it.
type Library interface {
	List(ctx context.Context, q string) ([]recordings.Recording, error)
	Get(ctx context.Context, id string) (recordings.Recording, error)
	Import(ctx context.Context, localFile string, duration float64, analyze bool) (recordings.Recording, error)
	Reanalyze(ctx context.Context, id string) (recordings.Recording, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (recordings.StorageInfo, error)
	OpenAudio(ctx context.Context, id string) (recordings.Recording, string, io.ReadCloser, error)
	Settings(ctx context.Context) (recordings.Settings, error)
	UpdateSettings(ctx context.Context, s recordings.Settings) error
}

// RecordingsHandler serves the recording library.
type RecordingsHandler struct {
	lib       Library
	uploadDir string
	maxBytes  int64
}

func NewRecordingsHandler(lib Library, uploadDir string, maxBytes int64) *RecordingsHandler {
	return &RecordingsHandler{lib: lib, uploadDir: uploadDir, maxBytes: maxBytes}
}

// RecordingListResponse is the body of GET /recordings.
type RecordingListResponse struct {
	Recordings []recordings.Recording `json:"recordings"`
	Total      int                    `json:"total"`
	Limit      int                    `json:"limit,omitempty"`
	Offset     int                    `json:"offset"`
}

// RenameRequest is the body of PATCH /recordings/{id}.
type RenameRequest struct {
	Name string `json:"name"`
}

// Routes registers library routes. clearAuth guards DELETE /recordings.
func (h *RecordingsHandler) Routes(r chi.Router, clearAuth func(http.Handler) http.Handler) {
	r.Get("/recordings", h.List)
	r.Post("/recordings", h.Create)
	r.With(clearAuth).Delete("/recordings", h.Clear)
	r.Get("/recordings/{id}", h.Get)
	r.Patch("/recordings/{id}", h.Rename)
	r.Delete("/recordings/{id}", h.Delete)
	r.Get("/recordings/{id}/audio", h.Audio)
	r.Post("/recordings/{id}/analyze", h.Reanalyze)
	r.Get("/storage", h.Storage)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
}

// List handles GET /recordings?q=&limit=&offset=.
func (h *RecordingsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, _ := QueryString(r, "q")

	list, err := h.lib.List(r.Context(), q)
	if err != nil {
		h.serverError(w, r, "failed to list recordings", err)
		return
	}
	start, end := p.Window(len(list))
	WriteJSON(w, http.StatusOK, RecordingListResponse{
		Recordings: list[start:end],
		Total:      len(list),
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
}

// Create handles POST /recordings with multipart fields "audio", "duration"
// and optional "analyze". A failed analysis does not fail the save.
func (h *RecordingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	path, err := receiveAudio(r, "audio", h.uploadDir, h.maxBytes)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Import consumes the file on success; this catches every other path.
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			hlog.FromRequest(r).Warn().Err(err).Str("path", path).Msg("failed to remove staged audio")
		}
	}()

	var duration float64
	if v := strings.TrimSpace(r.FormValue("duration")); v != "" {
		duration, err = strconv.ParseFloat(v, 64)
		if err != nil || duration < 0 {
			WriteError(w, http.StatusBadRequest, "invalid duration "+strconv.Quote(v)+": must be a non-negative number of seconds")
			return
		}
	}

	analyze := true
	if v := strings.TrimSpace(r.FormValue("analyze")); v != "" {
		analyze, err = strconv.ParseBool(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid analyze "+strconv.Quote(v)+": must be a boolean")
			return
		}
	}

	rec, err := h.lib.Import(r.Context(), path, duration, analyze)
	if err != nil {
		h.serverError(w, r, "failed to save recording", err)
		return
	}
	WriteJSON(w, http.StatusCreated, rec)
}

// Get handles GET /recordings/{id}.
func (h *RecordingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lib.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// Rename handles PATCH /recordings/{id}. Unknown ids are a no-op.
func (h *RecordingsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.lib.Rename(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		h.serverError(w, r, "failed to rename recording", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /recordings/{id}. Unknown ids are a no-op.
func (h *RecordingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.serverError(w, r, "failed to delete recording", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /recordings.
func (h *RecordingsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.Clear(r.Context()); err != nil {
		h.serverError(w, r, "failed to clear recordings", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audio handles GET /recordings/{id}/audio, redirecting to the object store
// when it hands out direct links.
func (h *RecordingsHandler) Audio(w http.ResponseWriter, r *http.Request) {
	rec, url, rc, err := h.lib.OpenAudio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, r, err)
		return
	}
	if url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", recordings.ContentType(rec.URI))
	if rec.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("id", rec.ID).Msg("audio stream interrupted")
	}
}

// Reanalyze handles POST /recordings/{id}/analyze.
func (h *RecordingsHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lib.Reanalyze(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// Storage handles GET /storage.
func (h *RecordingsHandler) Storage(w http.ResponseWriter, r *http.Request) {
	info, err := h.lib.Stats(r.Context())
	if err != nil {
		h.serverError(w, r, "failed to read storage info", err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// GetSettings handles GET /settings.
func (h *RecordingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.lib.Settings(r.Context())
	if err != nil {
		h.serverError(w, r, "failed to load settings", err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

// PutSettings handles PUT /settings. Omitted fields keep their current value.
func (h *RecordingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.lib.Settings(r.Context())
	if err != nil {
		h.serverError(w, r, "failed to load settings", err)
		return
	}
	if err := DecodeJSON(r, &s); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if s.MaxRecordingLength < 1 {
		WriteError(w, http.StatusBadRequest, "maxRecordingLength must be >= 1")
		return
	}
	if err := h.lib.UpdateSettings(r.Context(), s); err != nil {
		h.serverError(w, r, "failed to save settings", err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

func (h *RecordingsHandler) lookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, recordings.ErrNotFound):
		WriteError(w, http.StatusNotFound, "recording not found")
	case errors.Is(err, storage.ErrNotExist):
		WriteError(w, http.StatusNotFound, "audio file not found")
	default:
		h.serverError(w, r, "request failed", err)
	}
}

func (h *RecordingsHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg(msg)
	WriteErrorDetail(w, http.StatusInternalServerError, msg, err.Error())
}
