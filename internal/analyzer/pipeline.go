// Package analyzer drives one recording through the transcription provider
// and scores the result.
package analyzer

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/coach"
	"github.com/voicecoach/voicecoach/internal/metrics"
	"github.com/voicecoach/voicecoach/internal/transcribe"
)

// Options configures a Pipeline.
type Options struct {
	Provider transcribe.Transcriber
	Poller   *transcribe.Poller
	Log      zerolog.Logger
}

// Pipeline runs upload, submit, poll and score in sequence.
type Pipeline struct {
	provider transcribe.Transcriber
	poller   *transcribe.Poller
	log      zerolog.Logger

	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// Stats reports pipeline counters.
type Stats struct {
	InFlight  int64 `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		provider: opts.Provider,
		poller:   opts.Poller,
		log:      opts.Log.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze reads the whole recording from audio and returns its scored
// analysis. Errors are *StageError values naming the failed stage.
func (p *Pipeline) Analyze(ctx context.Context, audio io.Reader) (*coach.Analysis, error) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	start := time.Now()
	a, err := p.run(ctx, audio)
	if err != nil {
		p.failed.Add(1)
		metrics.AnalysesTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	p.completed.Add(1)
	metrics.AnalysesTotal.WithLabelValues("success").Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	return a, nil
}

func (p *Pipeline) run(ctx context.Context, audio io.Reader) (*coach.Analysis, error) {
	var (
		data      []byte
		uploadURL string
	)
	if err := p.stage(StageUploading, func() error {
		var err error
		data, err = io.ReadAll(audio)
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		uploadURL, err = p.provider.Upload(ctx, data)
		return err
	}); err != nil {
		return nil, err
	}

	var job *transcribe.Job
	if err := p.stage(StageSubmitting, func() error {
		var err error
		job, err = p.provider.Submit(ctx, uploadURL)
		return err
	}); err != nil {
		return nil, err
	}

	log := p.log.With().Str("job_id", job.ID).Logger()
	log.Debug().Int("bytes", len(data)).Msg("transcription job submitted")

	var res *transcribe.Result
	if err := p.stage(StagePolling, func() error {
		var err error
		res, err = p.poller.Poll(ctx, job.ID)
		return err
	}); err != nil {
		return nil, err
	}

	// Scoring is pure and cannot fail; it is only timed.
	scoreStart := time.Now()
	a := coach.Score(res)
	p.observe(StageScoring, scoreStart)

	log.Info().
		Int("confidence", a.Confidence).
		Int("fillers", a.FillerCount).
		Float64("sentiment", a.SentimentScore).
		Float64("wpm", a.SpeakingRate).
		Int("tips", len(a.Tips)).
		Msg("analysis complete")

	return &a, nil
}

// stage runs fn, timing it under the stage label and tagging any error.
func (p *Pipeline) stage(s Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	p.observe(s, start)
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues(string(s)).Inc()
		return &StageError{Stage: s, Err: err}
	}
	return nil
}

func (p *Pipeline) observe(s Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		InFlight:  p.inFlight.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// InFlight returns the number of analyses currently running.
func (p *Pipeline) InFlight() int { return int(p.inFlight.Load()) }
