package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Polling defaults. The provider typically finishes a short recording in well
// under a minute; the bounds only catch jobs that never resolve.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 120
	DefaultPollDeadline    = 10 * time.Minute
)

// PollerOptions configures a Poller. Zero values select the defaults.
type PollerOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Deadline    time.Duration
	Log         zerolog.Logger

	// OnAttempt is called after every status request. May be nil.
	OnAttempt func(attempt int, status JobStatus)
}

// Poller waits for a transcription job to reach a terminal status.
type Poller struct {
	source Transcriber
	opts   PollerOptions
	log    zerolog.Logger

	// wait blocks for d or until ctx is done. Replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller that queries source for job status.
func NewPoller(source Transcriber, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultPollMaxAttempts
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultPollDeadline
	}
	return &Poller{
		source: source,
		opts:   opts,
		log:    opts.Log.With().Str("component", "poller").Logger(),
		wait:   sleepCtx,
	}
}

// Interval returns the delay between status requests.
func (p *Poller) Interval() time.Duration { return p.opts.Interval }

// MaxAttempts returns the maximum number of status requests per job.
func (p *Poller) MaxAttempts() int { return p.opts.MaxAttempts }

// Deadline returns the wall-clock bound on a single Poll call.
func (p *Poller) Deadline() time.Duration { return p.opts.Deadline }

// Poll requests job status until the job completes or fails.
// A job in StatusError fails immediately with ErrTranscriptionFailed. Running
// out of attempts or hitting the deadline fails with ErrPollTimeout.
func (p *Poller) Poll(ctx context.Context, jobID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Deadline)
	defer cancel()

	log := p.log.With().Str("job_id", jobID).Logger()

	for attempt := 1; ; attempt++ {
		res, err := p.source.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: job %s: deadline %s exceeded", ErrPollTimeout, jobID, p.opts.Deadline)
			}
			return nil, err
		}
		if p.opts.OnAttempt != nil {
			p.opts.OnAttempt(attempt, res.Status)
		}

		if res.Status.Terminal() {
			if res.Status == StatusError {
				msg := res.Error
				if msg == "" {
					msg = "provider reported error status"
				}
				return nil, fmt.Errorf("%w: job %s: %s", ErrTranscriptionFailed, jobID, msg)
			}
			log.Debug().Int("attempts", attempt).Msg("transcription completed")
			return res, nil
		}

		if attempt >= p.opts.MaxAttempts {
			return nil, fmt.Errorf("%w: job %s still %q after %d attempts", ErrPollTimeout, jobID, res.Status, attempt)
		}

		log.Debug().Int("attempt", attempt).Str("status", string(res.Status)).Msg("job not finished, waiting")
		if err := p.wait(ctx, p.opts.Interval); err != nil {
			if err == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: job %s: deadline %s exceeded", ErrPollTimeout, jobID, p.opts.Deadline)
			}
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
