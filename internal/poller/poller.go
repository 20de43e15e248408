// Package poller drives submit-and-poll jobs at third-party providers until they settle
package poller

import (
	"context"
	"strings"
	"time"

	"github.com/japanesestudent/coursegen/internal/models"
	"go.uber.org/zap"
)

// now is overridden in tests to provide deterministic timestamps.
var now = time.Now

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 120
)

// StatusFetcher retrieves the current state of a job at one provider.
// Implementations translate the provider's vocabulary into models.JobStatus,
// usually through a Vocabulary.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error)
}

// StatusFetcherFunc adapts a function to StatusFetcher
type StatusFetcherFunc func(ctx context.Context, jobID string) (models.JobSnapshot, error)

// FetchStatus calls f(ctx, jobID)
func (f StatusFetcherFunc) FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	return f(ctx, jobID)
}

// Vocabulary maps raw provider status strings to normalized statuses.
// Lookups are case-insensitive; unknown values count as pending.
type Vocabulary map[string]models.JobStatus

// Normalize converts a raw provider status
func (v Vocabulary) Normalize(raw string) models.JobStatus {
	if status, ok := v[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return models.JobStatusPending
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval sets the delay between status checks
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts sets how many status checks are made before giving up
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithSleep replaces the wait between attempts. Used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// Poller polls asynchronous jobs with a fixed interval and attempt cap
type Poller struct {
	interval    time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

// New creates a Poller with a 2s interval and 120 attempts unless overridden
func New(logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the worst-case wall time of a single Poll call
func (p *Poller) Budget() time.Duration {
	return p.interval * time.Duration(p.maxAttempts)
}

// Poll checks the job until it reaches a terminal status or attempts run out.
//
// Poll never returns an error: running out of attempts yields JobStatusTimeout,
// a cancelled context yields JobStatusCanceled, and fetch errors are recorded on the
// job while polling continues (each one consumes an attempt).
func (p *Poller) Poll(ctx context.Context, providerID, jobID string, fetcher StatusFetcher) models.AsyncJob {
	job := models.AsyncJob{
		ProviderID:  providerID,
		JobID:       jobID,
		SubmittedAt: now(),
		Status:      models.JobStatusPending,
	}

	for job.Attempts < p.maxAttempts {
		if job.Attempts > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				job.Status = models.JobStatusCanceled
				job.Error = err.Error()
				return job
			}
		}
		job.Attempts++

		snapshot, err := fetcher.FetchStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				job.Status = models.JobStatusCanceled
				job.Error = ctx.Err().Error()
				return job
			}
			job.Error = err.Error()
			p.logger.Debug("job status check failed",
				zap.String("provider", providerID),
				zap.String("job_id", jobID),
				zap.Int("attempt", job.Attempts),
				zap.Error(err),
			)
			continue
		}

		if snapshot.Status == models.JobStatusTimeout {
			snapshot.Status = models.JobStatusFailed
		}
		if !snapshot.Status.Terminal() {
			continue
		}

		job.Status = snapshot.Status
		job.OutputURL = snapshot.OutputURL
		job.Error = snapshot.Error
		return job
	}

	job.Status = models.JobStatusTimeout
	p.logger.Warn("job polling timed out",
		zap.String("provider", providerID),
		zap.String("job_id", jobID),
		zap.Int("attempts", job.Attempts),
		zap.Duration("elapsed", now().Sub(job.SubmittedAt)),
	)
	return job
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
