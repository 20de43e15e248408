package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/japanesestudent/coursegen/internal/config"
)

const defaultMaxInputChars = 12000

// chatProvider calls an OpenAI-compatible chat completions endpoint (OpenAI, Groq, local gateways)
type chatProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewChatProvider creates a chat completions content provider
func NewChatProvider(cfg config.ProviderConfig, client *http.Client) *chatProvider {
	return &chatProvider{cfg: cfg, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ID returns the configured provider id
func (p *chatProvider) ID() string { return p.cfg.ID }

// MaxInputChars returns how much source text fits the provider's context budget
func (p *chatProvider) MaxInputChars() int { return maxInputChars(p.cfg) }

// Complete sends the system and user prompts and returns the raw assistant message
func (p *chatProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	headers := map[string]string{}
	if p.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.cfg.APIKey
	}

	req := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: p.cfg.Temperature,
	}

	var resp chatResponse
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodPost, p.cfg.Endpoint, headers, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s error: %s", p.cfg.ID, resp.Error.Message)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s returned empty completion", p.cfg.ID)
	}
	return resp.Choices[0].Message.Content, nil
}

// geminiProvider calls the Gemini generateContent endpoint
type geminiProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewGeminiProvider creates a Gemini content provider
func NewGeminiProvider(cfg config.ProviderConfig, client *http.Client) *geminiProvider {
	return &geminiProvider{cfg: cfg, client: client}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// ID returns the configured provider id
func (p *geminiProvider) ID() string { return p.cfg.ID }

// MaxInputChars returns how much source text fits the provider's context budget
func (p *geminiProvider) MaxInputChars() int { return maxInputChars(p.cfg) }

// Complete sends the prompts and returns the text of the first candidate
func (p *geminiProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent", strings.TrimRight(p.cfg.Endpoint, "/"), p.cfg.Model)
	headers := map[string]string{"x-goog-api-key": p.cfg.APIKey}

	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	req.GenerationConfig.Temperature = p.cfg.Temperature
	req.GenerationConfig.ResponseMimeType = "application/json"

	var resp geminiResponse
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodPost, endpoint, headers, req, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%s returned empty completion", p.cfg.ID)
	}
	return sb.String(), nil
}

func maxInputChars(cfg config.ProviderConfig) int {
	if cfg.MaxInputChars > 0 {
		return cfg.MaxInputChars
	}
	return defaultMaxInputChars
}
