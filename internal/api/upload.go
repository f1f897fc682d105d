package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/voicecoach/voicecoach/internal/recordings"
)

// errMissingAudio is returned when the multipart body has no audio part.
var errMissingAudio = errors.New(`missing "audio" file field`)

// receiveAudio copies the multipart file field into a new temp file in dir
// and returns its path. The caller owns the file. On error no file is left
// behind.
func receiveAudio(r *http.Request, field, dir string, maxBytes int64) (string, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", errMissingAudio
	}
	if err != nil {
		return "", fmt.Errorf("read %s field: %w", field, err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !recordings.IsAudioFile(ext) {
		ext = ".m4a"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}
