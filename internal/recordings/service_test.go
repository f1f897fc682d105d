package recordings

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicecoach/voicecoach/internal/coach"
)

type fakeAnalyzer struct {
	got    []byte
	result *coach.Analysis
	err    error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, r io.Reader) (*coach.Analysis, error) {
	a.got, _ = io.ReadAll(r)
	return a.result, a.err
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(event string, payload any) {
	p.events = append(p.events, event)
}

func TestServiceImportAnalyzes(t *testing.T) {
	f := newFixture(t)
	an := &fakeAnalyzer{result: &coach.Analysis{
		Transcript: "hello there",
		Confidence: 90,
		Tips:       []string{},
		Duration:   7.25,
	}}
	pub := &recordingPublisher{}
	svc := NewService(f.store, f.kv, an, pub, zerolog.Nop())

	rec, err := svc.Import(context.Background(), f.tempAudio(t, "a.m4a", "audio"), 0, true)
	require.NoError(t, err)

	assert.Equal(t, "audio", string(an.got))
	require.NotNil(t, rec.Analysis)
	assert.Equal(t, "hello there", rec.Analysis.Transcript)
	assert.Equal(t, 7.25, rec.Duration, "zero duration is filled from the analysis")
	assert.Equal(t, []string{EventSaved, EventAnalyzed}, pub.events)
}

func TestServiceImportAnalysisFailureStillSaves(t *testing.T) {
	f := newFixture(t)
	an := &fakeAnalyzer{err: errors.New("provider down")}
	pub := &recordingPublisher{}
	svc := NewService(f.store, f.kv, an, pub, zerolog.Nop())

	rec, err := svc.Import(context.Background(), f.tempAudio(t, "a.m4a", "audio"), 3, true)
	require.NoError(t, err)
	assert.Nil(t, rec.Analysis)
	assert.Equal(t, 3.0, rec.Duration)
	assert.Equal(t, []string{EventSaved}, pub.events)

	list, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestServiceImportWithoutAnalysis(t *testing.T) {
	f := newFixture(t)
	an := &fakeAnalyzer{}
	svc := NewService(f.store, f.kv, an, nil, zerolog.Nop())

	rec, err := svc.Import(context.Background(), f.tempAudio(t, "a.m4a", "audio"), 3, false)
	require.NoError(t, err)
	assert.Nil(t, rec.Analysis)
	assert.Nil(t, an.got)
}

func TestServiceReanalyze(t *testing.T) {
	f := newFixture(t)
	an := &fakeAnalyzer{result: &coach.Analysis{Transcript: "again", Confidence: 70, Tips: []string{coach.TipSlowDown}}}
	svc := NewService(f.store, f.kv, an, nil, zerolog.Nop())
	saved := f.save(t, "stored-bytes")

	rec, err := svc.Reanalyze(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "stored-bytes", string(an.got))
	require.NotNil(t, rec.Analysis)

	got, err := f.store.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, []string{coach.TipSlowDown}, got.Analysis.Tips)

	_, err = svc.Reanalyze(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceMutationsPublish(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := NewService(f.store, f.kv, nil, pub, zerolog.Nop())
	rec := f.save(t, "x")

	require.NoError(t, svc.Rename(context.Background(), rec.ID, "new"))
	require.NoError(t, svc.Delete(context.Background(), rec.ID))
	require.NoError(t, svc.Clear(context.Background()))
	assert.Equal(t, []string{EventRenamed, EventDeleted, EventCleared}, pub.events)
}

func TestSettings(t *testing.T) {
	kv := newMemKV()
	ctx := context.Background()

	s, err := LoadSettings(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	want := Settings{HighQuality: false, AutoSave: false, MaxRecordingLength: 120}
	require.NoError(t, SaveSettings(ctx, kv, want))
	assert.Equal(t, "false", string(kv.data["autoSave"]))
	assert.Equal(t, "120", string(kv.data["maxRecordingLength"]))

	s, err = LoadSettings(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, want, s)

	assert.Error(t, SaveSettings(ctx, kv, Settings{MaxRecordingLength: 0}))
}

func TestSettingsPartial(t *testing.T) {
	kv := newMemKV()
	kv.data["autoSave"] = []byte("false")

	s, err := LoadSettings(context.Background(), kv)
	require.NoError(t, err)
	assert.False(t, s.AutoSave)
	assert.True(t, s.HighQuality)
	assert.Equal(t, 300, s.MaxRecordingLength)
}

func TestServiceOpenAudio(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, f.kv, nil, nil, zerolog.Nop())
	saved := f.save(t, "pcm")

	rec, url, rc, err := svc.OpenAudio(context.Background(), saved.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Empty(t, url, "local store has no direct links")
	assert.Equal(t, saved.ID, rec.ID)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "pcm", string(body))

	_, _, _, err = svc.OpenAudio(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
