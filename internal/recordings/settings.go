package recordings

import (
	"context"
	"encoding/json"
	"fmt"
)

// Settings are the app-level recording preferences. Each field is persisted
// under its own KV key.
type Settings struct {
	HighQuality        bool `json:"highQuality"`
	AutoSave           bool `json:"autoSave"`
	MaxRecordingLength int  `json:"maxRecordingLength"` // seconds
}

// KV keys for settings.
const (
	keyHighQuality        = "highQuality"
	keyAutoSave           = "autoSave"
	keyMaxRecordingLength = "maxRecordingLength"
)

// DefaultSettings are used for keys that have never been written.
func DefaultSettings() Settings {
	return Settings{HighQuality: true, AutoSave: true, MaxRecordingLength: 300}
}

// LoadSettings reads settings, filling unset keys from DefaultSettings.
func LoadSettings(ctx context.Context, kv KV) (Settings, error) {
	s := DefaultSettings()
	fields := []struct {
		key string
		dst any
	}{
		{keyHighQuality, &s.HighQuality},
		{keyAutoSave, &s.AutoSave},
		{keyMaxRecordingLength, &s.MaxRecordingLength},
	}
	for _, f := range fields {
		raw, ok, err := kv.Get(ctx, f.key)
		if err != nil {
			return Settings{}, fmt.Errorf("load setting %s: %w", f.key, err)
		}
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Settings{}, fmt.Errorf("decode setting %s: %w", f.key, err)
		}
	}
	return s, nil
}

// SaveSettings validates and writes every setting.
func SaveSettings(ctx context.Context, kv KV, s Settings) error {
	if s.MaxRecordingLength < 1 {
		return fmt.Errorf("invalid maxRecordingLength %d: must be >= 1", s.MaxRecordingLength)
	}
	values := []struct {
		key string
		val any
	}{
		{keyHighQuality, s.HighQuality},
		{keyAutoSave, s.AutoSave},
		{keyMaxRecordingLength, s.MaxRecordingLength},
	}
	for _, v := range values {
		raw, _ := json.Marshal(v.val)
		if err := kv.Set(ctx, v.key, raw); err != nil {
			return fmt.Errorf("save setting %s: %w", v.key, err)
		}
	}
	return nil
}
