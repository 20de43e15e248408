package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/japanesestudent/coursegen/internal/models"
)

// ErrExtractorNotConfigured is returned when no extraction service URL is configured
var ErrExtractorNotConfigured = errors.New("text extractor is not configured")

// extractorClient posts documents to the text extraction service
type extractorClient struct {
	url    string
	client *http.Client
}

// NewExtractorClient creates a new extractor client
func NewExtractorClient(url string, client *http.Client) *extractorClient {
	return &extractorClient{url: url, client: client}
}

// Extract uploads the document as multipart form data and returns its text
func (c *extractorClient) Extract(ctx context.Context, fileName string, data []byte) (*models.ExtractedDocument, error) {
	if c.url == "" {
		return nil, ErrExtractorNotConfigured
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create extract request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call extractor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError("extractor", resp)
	}

	var result models.ExtractedDocument
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode extractor response: %w", err)
	}
	return &result, nil
}
