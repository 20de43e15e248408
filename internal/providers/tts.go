package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/japanesestudent/coursegen/internal/config"
)

// ErrTTSNotConfigured is returned when no TTS credentials are configured
var ErrTTSNotConfigured = errors.New("tts provider is not configured")

// maxAudioBytes caps the size of a synthesized narration track
const maxAudioBytes = 50 << 20

// ttsClient synthesizes speech through an ElevenLabs-compatible API
type ttsClient struct {
	cfg    config.TTSConfig
	client *http.Client
}

// NewTTSClient creates a new text-to-speech client
func NewTTSClient(cfg config.TTSConfig, client *http.Client) *ttsClient {
	return &ttsClient{cfg: cfg, client: client}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize converts text to MP3 audio with the given voice (default voice when empty)
func (c *ttsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrTTSNotConfigured
	}
	if voiceID == "" {
		voiceID = c.cfg.DefaultVoiceID
	}

	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.cfg.BaseURL, url.PathEscape(voiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError("tts", resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tts audio: %w", err)
	}
	return audio, nil
}
