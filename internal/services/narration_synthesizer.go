package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/storage"
	"go.uber.org/zap"
)

// TTSClient is the interface that wraps a text-to-speech service
type TTSClient interface {
	// Synthesize converts text into MP3 audio using the given voice.
	//
	// An empty voiceID selects the provider default.
	// If synthesis fails, the error will be returned together with "nil" value.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// ObjectStorage is the interface that wraps durable media storage
type ObjectStorage interface {
	// Put stores data under key, replacing any existing object, and returns its public URL.
	//
	// If the object cannot be stored, the error will be returned together with an empty URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Remove deletes the object stored under key. Missing objects are not an error.
	Remove(ctx context.Context, key string) error
}

// skipAudioError is implemented by provider errors that carry a deliberate skip hint
type skipAudioError interface {
	SkipAudioRequested() bool
}

const (
	maxNarrationChars = 5000
	minNarrationChars = 10
	audioContentType  = "audio/mpeg"
)

type narrationSynthesizer struct {
	tts     TTSClient
	storage ObjectStorage
	logger  *zap.Logger
}

// NewNarrationSynthesizer creates a new narration synthesizer
func NewNarrationSynthesizer(tts TTSClient, storage ObjectStorage, logger *zap.Logger) *narrationSynthesizer {
	return &narrationSynthesizer{
		tts:     tts,
		storage: storage,
		logger:  logger,
	}
}

// Synthesize turns an episode script into a stored narration track.
//
// It returns nil when the text is too short, the provider fails or the provider
// returns no audio. A storage failure does not lose the audio: it is returned
// inline as a data URI instead. Episode numbers are 1-based.
func (s *narrationSynthesizer) Synthesize(ctx context.Context, courseID string, episode int, text, voiceID string) *models.NarrationAsset {
	cleaned := CleanNarrationText(text)
	if utf8.RuneCountInString(cleaned) < minNarrationChars {
		s.logger.Info("narration text too short, skipping audio",
			zap.String("course_id", courseID),
			zap.Int("episode", episode),
		)
		return nil
	}

	audio, err := s.tts.Synthesize(ctx, cleaned, voiceID)
	if err != nil {
		var skip skipAudioError
		if errors.As(err, &skip) && skip.SkipAudioRequested() {
			s.logger.Info("narration provider requested to skip audio",
				zap.String("course_id", courseID),
				zap.Int("episode", episode),
			)
			return nil
		}
		s.logger.Warn("narration synthesis failed",
			zap.String("course_id", courseID),
			zap.Int("episode", episode),
			zap.Error(err),
		)
		return nil
	}
	if len(audio) == 0 {
		s.logger.Warn("narration provider returned empty audio",
			zap.String("course_id", courseID),
			zap.Int("episode", episode),
		)
		return nil
	}

	asset := &models.NarrationAsset{Duration: EstimateAudioDuration(len(audio))}

	url, err := s.storage.Put(ctx, storage.NarrationKey(courseID, episode), audio, audioContentType)
	if err != nil {
		s.logger.Warn("narration upload failed, embedding audio inline",
			zap.String("course_id", courseID),
			zap.Int("episode", episode),
			zap.Error(err),
		)
		asset.URL = storage.DataURI(audioContentType, audio)
		asset.Inline = true
		return asset
	}

	asset.URL = url
	return asset
}

// CleanNarrationText collapses whitespace and caps the text at 5000 characters
func CleanNarrationText(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	return truncateRunes(cleaned, maxNarrationChars)
}
