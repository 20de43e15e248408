package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/poller"
	"github.com/japanesestudent/coursegen/internal/storage"
	"go.uber.org/zap"
)

// VideoProvider is the interface that wraps a submit-and-poll video generation service
type VideoProvider interface {
	// ID returns the provider identifier used in logs and results
	ID() string
	// Requires returns the inputs ("image", "audio", "prompt") the provider cannot work without
	Requires() []string
	// Submit starts a job and returns its provider-side id.
	//
	// If the job is rejected, the error will be returned together with an empty id.
	Submit(ctx context.Context, in models.VideoInput) (string, error)
	// FetchStatus reports the normalized status of a submitted job
	FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error)
}

// JobPoller is the interface that wraps polling of asynchronous jobs
type JobPoller interface {
	// Poll checks the job until it settles and never fails: exhaustion yields a timeout status
	Poll(ctx context.Context, providerID, jobID string, fetcher poller.StatusFetcher) models.AsyncJob
}

// Downloader is the interface that wraps fetching provider outputs
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// VideoRequest holds everything needed to produce one episode video
type VideoRequest struct {
	CourseID string
	// Episode is the 1-based episode number
	Episode  int
	Title    string
	Script   string
	ImageURL string
	AudioURL string
}

// VideoResult describes the video produced for an episode
type VideoResult struct {
	URL      string
	Provider string
	Rehosted bool
	Jobs     []models.AsyncJob
}

const (
	videoContentType   = "video/mp4"
	maxPromptExcerpt   = 300
	placeholderKeyword = "placeholder"
)

type videoSynthesizer struct {
	lipSync     []VideoProvider
	textToVideo []VideoProvider
	poller      JobPoller
	downloader  Downloader
	storage     ObjectStorage
	logger      *zap.Logger
}

// NewVideoSynthesizer creates a video synthesizer over the two provider ladders
func NewVideoSynthesizer(
	lipSync []VideoProvider,
	textToVideo []VideoProvider,
	poller JobPoller,
	downloader Downloader,
	storage ObjectStorage,
	logger *zap.Logger,
) *videoSynthesizer {
	return &videoSynthesizer{
		lipSync:     lipSync,
		textToVideo: textToVideo,
		poller:      poller,
		downloader:  downloader,
		storage:     storage,
		logger:      logger,
	}
}

// Synthesize walks the provider ladders and returns the first usable video, or nil.
//
// With durable narration audio and a reference image the lip-sync ladder is tried
// first; the text-to-video ladder is tried after it (or alone otherwise). A provider
// whose required inputs are missing is skipped without being called. The winning
// output is copied into storage; if that fails the provider URL is kept.
func (s *videoSynthesizer) Synthesize(ctx context.Context, req VideoRequest) *VideoResult {
	input := models.VideoInput{
		Prompt:   BuildVideoPrompt(req.Title, req.Script),
		ImageURL: req.ImageURL,
	}
	if req.AudioURL != "" && !storage.IsDataURI(req.AudioURL) {
		input.AudioURL = req.AudioURL
	}

	var ladder []VideoProvider
	if input.AudioURL != "" && input.ImageURL != "" {
		ladder = append(ladder, s.lipSync...)
	}
	ladder = append(ladder, s.textToVideo...)

	result := &VideoResult{}
	for _, provider := range ladder {
		if ctx.Err() != nil {
			break
		}
		if missing := missingInput(provider, input); missing != "" {
			s.logger.Debug("skipping video provider, missing input",
				zap.String("provider", provider.ID()),
				zap.String("input", missing),
			)
			continue
		}

		job, ok := s.attempt(ctx, provider, input, req)
		if job != nil {
			result.Jobs = append(result.Jobs, *job)
		}
		if !ok {
			continue
		}

		result.Provider = provider.ID()
		result.URL, result.Rehosted = s.rehost(ctx, req, job.OutputURL)
		return result
	}

	s.logger.Warn("no video provider succeeded",
		zap.String("course_id", req.CourseID),
		zap.Int("episode", req.Episode),
		zap.Int("attempts", len(result.Jobs)),
	)
	return nil
}

// attempt submits and polls one provider; ok is true only for a usable output
func (s *videoSynthesizer) attempt(ctx context.Context, provider VideoProvider, input models.VideoInput, req VideoRequest) (*models.AsyncJob, bool) {
	jobID, err := provider.Submit(ctx, input)
	if err != nil {
		s.logger.Warn("video job submission failed",
			zap.String("provider", provider.ID()),
			zap.String("course_id", req.CourseID),
			zap.Int("episode", req.Episode),
			zap.Error(err),
		)
		return nil, false
	}

	job := s.poller.Poll(ctx, provider.ID(), jobID, provider)
	if job.Status != models.JobStatusSucceeded || !IsUsableVideoURL(job.OutputURL) {
		s.logger.Warn("video job did not produce a usable output",
			zap.String("provider", provider.ID()),
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)),
			zap.Int("attempts", job.Attempts),
			zap.String("error", job.Error),
		)
		return &job, false
	}

	s.logger.Info("video job succeeded",
		zap.String("provider", provider.ID()),
		zap.String("job_id", jobID),
		zap.Int("attempts", job.Attempts),
	)
	return &job, true
}

// rehost copies the provider output into storage, falling back to the provider URL
func (s *videoSynthesizer) rehost(ctx context.Context, req VideoRequest, outputURL string) (string, bool) {
	data, contentType, err := s.downloader.Download(ctx, outputURL)
	if err != nil {
		s.logger.Warn("failed to download video output, keeping provider url", zap.Error(err))
		return outputURL, false
	}
	if contentType == "" || !strings.HasPrefix(contentType, "video/") {
		contentType = videoContentType
	}

	url, err := s.storage.Put(ctx, storage.VideoKey(req.CourseID, req.Episode), data, contentType)
	if err != nil {
		s.logger.Warn("failed to store video, keeping provider url", zap.Error(err))
		return outputURL, false
	}
	return url, true
}

// missingInput returns the first required input absent from in, or ""
func missingInput(provider VideoProvider, in models.VideoInput) string {
	for _, name := range provider.Requires() {
		if !in.Has(name) {
			return name
		}
	}
	return ""
}

// IsUsableVideoURL reports whether a provider output can be used as an episode video
func IsUsableVideoURL(url string) bool {
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return false
	}
	return !strings.Contains(strings.ToLower(url), placeholderKeyword)
}

// BuildVideoPrompt builds a text-to-video prompt from the episode title and script
func BuildVideoPrompt(title, script string) string {
	excerpt := truncateRunes(strings.Join(strings.Fields(script), " "), maxPromptExcerpt)
	return fmt.Sprintf("Professional corporate training video about %s. Clean, well-lit workplace setting. %s", title, excerpt)
}
