// Package providers contains HTTP clients for the third-party generation services
// used by the course pipeline: content generation, narration, video jobs and
// document text extraction.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 2048

// HTTPError is returned when a provider answers with a non-2xx status
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
	// SkipAudio is set when the provider asked the caller to continue without narration
	SkipAudio bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// SkipAudioRequested reports whether the provider flagged the failure as a deliberate skip
func (e *HTTPError) SkipAudioRequested() bool {
	return e.SkipAudio
}

// newHTTPError reads the response body into an HTTPError
func newHTTPError(provider string, resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	httpErr := &HTTPError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}

	var hint struct {
		SkipAudio bool `json:"skipAudio"`
	}
	if json.Unmarshal(body, &hint) == nil {
		httpErr.SkipAudio = hint.SkipAudio
	}
	return httpErr
}

// doJSON sends a JSON request and decodes a JSON response into out (when non-nil)
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", provider, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(provider, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}

// Download fetches a remote file into memory, refusing bodies larger than maxBytes
func Download(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", newHTTPError("download", resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read download body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("download exceeds %d bytes", maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// downloader fetches provider outputs for re-hosting
type downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader creates a downloader that refuses files larger than maxBytes
func NewDownloader(client *http.Client, maxBytes int64) *downloader {
	return &downloader{client: client, maxBytes: maxBytes}
}

// Download fetches url and returns its body and content type
func (d *downloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	return Download(ctx, d.client, url, d.maxBytes)
}
