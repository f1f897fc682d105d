// Package recordings is the recording library: metadata persisted as a
// newest-first collection in a key-value store, audio in a storage.AudioStore.
package recordings

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/voicecoach/voicecoach/internal/coach"
)

// CollectionKey is the KV key holding the recording collection.
const CollectionKey = "recordings"

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("recording not found")

// Recording is one stored recording.
type Recording struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	URI       string          `json:"uri"`
	Duration  float64         `json:"duration"`
	CreatedAt string          `json:"createdAt"`
	Size      int64           `json:"size"`
	Analysis  *coach.Response `json:"analysis,omitempty"`
}

// StorageInfo summarizes library usage.
type StorageInfo struct {
	TotalRecordings int    `json:"totalRecordings"`
	TotalBytes      int64  `json:"totalBytes"`
	StorageUsed     string `json:"storageUsed"`
}

// FormatSize renders a byte count as "0 B", "1.5 KB", "12.3 MB" and so on.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	sizes := []string{"B", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	s := fmt.Sprintf("%.1f", v)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + sizes[i]
}

var contentTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".3gp":  "audio/3gpp",
	".caf":  "audio/x-caf",
}

// ContentType maps an audio file name to its MIME type.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsAudioFile reports whether name has a known audio extension.
func IsAudioFile(name string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

var errNoAnalyzer = errors.New("analysis is not configured")
