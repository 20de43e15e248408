package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// scriptedFetcher returns the scripted results in order, repeating the last one
type scriptedFetcher struct {
	snapshots []models.JobSnapshot
	errs      []error
	calls     int
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	i := f.calls
	f.calls++
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.snapshots[i], err
}

func noSleep(sleeps *int) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*sleeps++
		return ctx.Err()
	}
}

func TestNew(t *testing.T) {
	logger := zap.NewNop()

	p := New(logger)

	assert.Equal(t, DefaultInterval, p.interval)
	assert.Equal(t, DefaultMaxAttempts, p.maxAttempts)
	assert.Equal(t, 4*time.Minute, p.Budget())

	p = New(logger, WithInterval(time.Second), WithMaxAttempts(5), WithInterval(0))
	assert.Equal(t, time.Second, p.interval)
	assert.Equal(t, 5, p.maxAttempts)
}

func TestPoller_Poll(t *testing.T) {
	pending := models.JobSnapshot{Status: models.JobStatusPending}
	done := models.JobSnapshot{Status: models.JobStatusSucceeded, OutputURL: "https://cdn/video.mp4"}

	tests := []struct {
		name             string
		fetcher          *scriptedFetcher
		maxAttempts      int
		expectedStatus   models.JobStatus
		expectedAttempts int
		expectedURL      string
		expectedError    string
	}{
		{
			name:             "succeeds after pending",
			fetcher:          &scriptedFetcher{snapshots: []models.JobSnapshot{pending, pending, done}},
			maxAttempts:      10,
			expectedStatus:   models.JobStatusSucceeded,
			expectedAttempts: 3,
			expectedURL:      "https://cdn/video.mp4",
		},
		{
			name: "provider failure is terminal",
			fetcher: &scriptedFetcher{snapshots: []models.JobSnapshot{
				pending,
				{Status: models.JobStatusFailed, Error: "nsfw"},
			}},
			maxAttempts:      10,
			expectedStatus:   models.JobStatusFailed,
			expectedAttempts: 2,
			expectedError:    "nsfw",
		},
		{
			name:             "canceled by provider",
			fetcher:          &scriptedFetcher{snapshots: []models.JobSnapshot{{Status: models.JobStatusCanceled}}},
			maxAttempts:      10,
			expectedStatus:   models.JobStatusCanceled,
			expectedAttempts: 1,
		},
		{
			name:             "times out when always pending",
			fetcher:          &scriptedFetcher{snapshots: []models.JobSnapshot{pending}},
			maxAttempts:      4,
			expectedStatus:   models.JobStatusTimeout,
			expectedAttempts: 4,
		},
		{
			name: "fetch errors consume attempts and polling continues",
			fetcher: &scriptedFetcher{
				snapshots: []models.JobSnapshot{{}, {}, done},
				errs:      []error{errors.New("502"), errors.New("502")},
			},
			maxAttempts:      5,
			expectedStatus:   models.JobStatusSucceeded,
			expectedAttempts: 3,
			expectedURL:      "https://cdn/video.mp4",
		},
		{
			name: "fetch errors until exhaustion yield timeout",
			fetcher: &scriptedFetcher{
				snapshots: []models.JobSnapshot{{}},
				errs:      []error{errors.New("dns"), errors.New("dns"), errors.New("dns")},
			},
			maxAttempts:      3,
			expectedStatus:   models.JobStatusTimeout,
			expectedAttempts: 3,
			expectedError:    "dns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeps := 0
			p := New(zap.NewNop(), WithMaxAttempts(tt.maxAttempts), WithSleep(noSleep(&sleeps)))

			job := p.Poll(context.Background(), "replicate", "job-1", tt.fetcher)

			assert.Equal(t, tt.expectedStatus, job.Status)
			assert.Equal(t, tt.expectedAttempts, job.Attempts)
			assert.Equal(t, tt.expectedAttempts, tt.fetcher.calls)
			assert.Equal(t, tt.expectedAttempts-1, sleeps)
			assert.Equal(t, tt.expectedURL, job.OutputURL)
			assert.Equal(t, "replicate", job.ProviderID)
			assert.Equal(t, "job-1", job.JobID)
			if tt.expectedError != "" {
				assert.Contains(t, job.Error, tt.expectedError)
			}
		})
	}
}

func TestPoller_Poll_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{snapshots: []models.JobSnapshot{{Status: models.JobStatusPending}}}
	sleeps := 0
	p := New(zap.NewNop(), WithMaxAttempts(10), WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps++
		cancel()
		return ctx.Err()
	}))

	job := p.Poll(ctx, "did", "talk-1", fetcher)

	assert.Equal(t, models.JobStatusCanceled, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 1, sleeps)
}

func TestPoller_Poll_SubmittedAt(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	p := New(zap.NewNop(), WithSleep(func(context.Context, time.Duration) error { return nil }))
	job := p.Poll(context.Background(), "fal", "req-1", StatusFetcherFunc(func(ctx context.Context, jobID string) (models.JobSnapshot, error) {
		return models.JobSnapshot{Status: models.JobStatusSucceeded, OutputURL: "u"}, nil
	}))

	assert.Equal(t, fixed, job.SubmittedAt)
}

func TestVocabulary_Normalize(t *testing.T) {
	vocab := Vocabulary{
		"starting":   models.JobStatusPending,
		"processing": models.JobStatusPending,
		"succeeded":  models.JobStatusSucceeded,
		"failed":     models.JobStatusFailed,
		"canceled":   models.JobStatusCanceled,
	}

	tests := []struct {
		raw      string
		expected models.JobStatus
	}{
		{raw: "succeeded", expected: models.JobStatusSucceeded},
		{raw: " FAILED ", expected: models.JobStatusFailed},
		{raw: "Canceled", expected: models.JobStatusCanceled},
		{raw: "processing", expected: models.JobStatusPending},
		{raw: "something-new", expected: models.JobStatusPending},
		{raw: "", expected: models.JobStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, vocab.Normalize(tt.raw))
		})
	}
}
