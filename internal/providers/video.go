package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/japanesestudent/coursegen/internal/config"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/poller"
)

// Status vocabularies of the supported job APIs
var (
	replicateVocabulary = poller.Vocabulary{
		"starting":   models.JobStatusPending,
		"processing": models.JobStatusPending,
		"succeeded":  models.JobStatusSucceeded,
		"failed":     models.JobStatusFailed,
		"canceled":   models.JobStatusCanceled,
	}
	didVocabulary = poller.Vocabulary{
		"created":  models.JobStatusPending,
		"started":  models.JobStatusPending,
		"done":     models.JobStatusSucceeded,
		"error":    models.JobStatusFailed,
		"rejected": models.JobStatusFailed,
	}
	falVocabulary = poller.Vocabulary{
		"in_queue":    models.JobStatusPending,
		"in_progress": models.JobStatusPending,
		"completed":   models.JobStatusSucceeded,
		"failed":      models.JobStatusFailed,
		"error":       models.JobStatusFailed,
		"cancelled":   models.JobStatusCanceled,
		"canceled":    models.JobStatusCanceled,
	}
)

// jobProvider holds what every submit-and-poll video provider shares
type jobProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// ID returns the configured provider id
func (p *jobProvider) ID() string { return p.cfg.ID }

// Requires returns the inputs that must be present before the provider is called
func (p *jobProvider) Requires() []string { return p.cfg.Requires }

// buildInput merges static params with the mapped logical inputs.
// A provider with input_keys receives only the inputs listed there; otherwise defaults apply.
func (p *jobProvider) buildInput(in models.VideoInput, defaults map[string]string) map[string]any {
	input := make(map[string]any, len(p.cfg.Params)+3)
	for k, v := range p.cfg.Params {
		input[k] = v
	}

	keys := defaults
	if len(p.cfg.InputKeys) > 0 {
		keys = p.cfg.InputKeys
	}

	values := map[string]string{
		"prompt": in.Prompt,
		"image":  in.ImageURL,
		"audio":  in.AudioURL,
	}
	for name, value := range values {
		if key := keys[name]; value != "" && key != "" {
			input[key] = value
		}
	}
	return input
}

func (p *jobProvider) endpoint(parts ...string) string {
	return strings.TrimRight(p.cfg.Endpoint, "/") + "/" + strings.Join(parts, "/")
}

// replicateProvider runs models through the Replicate predictions API
type replicateProvider struct {
	jobProvider
}

// NewReplicateProvider creates a Replicate video provider.
// Model is either "owner/name:version" or "owner/name" for official models.
func NewReplicateProvider(cfg config.ProviderConfig, client *http.Client) *replicateProvider {
	return &replicateProvider{jobProvider{cfg: cfg, client: client}}
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func (p *replicateProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
}

// Submit creates a prediction and returns its id
func (p *replicateProvider) Submit(ctx context.Context, in models.VideoInput) (string, error) {
	input := p.buildInput(in, map[string]string{"prompt": "prompt", "image": "image", "audio": "audio"})

	url := p.endpoint("predictions")
	body := map[string]any{"input": input}
	if model, version, ok := strings.Cut(p.cfg.Model, ":"); ok {
		body["version"] = version
	} else {
		url = p.endpoint("models", model, "predictions")
	}

	var prediction replicatePrediction
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodPost, url, p.headers(), body, &prediction); err != nil {
		return "", err
	}
	if prediction.ID == "" {
		return "", fmt.Errorf("%s returned no prediction id", p.cfg.ID)
	}
	return prediction.ID, nil
}

// FetchStatus reads a prediction and normalizes its status
func (p *replicateProvider) FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	var prediction replicatePrediction
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodGet, p.endpoint("predictions", jobID), p.headers(), nil, &prediction); err != nil {
		return models.JobSnapshot{}, err
	}

	snapshot := models.JobSnapshot{
		Status:    replicateVocabulary.Normalize(prediction.Status),
		OutputURL: replicateOutputURL(prediction.Output),
	}
	if prediction.Error != nil {
		snapshot.Error = fmt.Sprint(prediction.Error)
	}
	return snapshot, nil
}

// replicateOutputURL accepts a single URL or a list of URLs (last one wins)
func replicateOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return single
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[len(list)-1]
	}
	return ""
}

// didProvider creates talking-head videos through the D-ID talks API
type didProvider struct {
	jobProvider
}

// NewDIDProvider creates a D-ID talks provider. It lip-syncs narration audio when
// present and otherwise has D-ID voice the prompt as a talking avatar.
func NewDIDProvider(cfg config.ProviderConfig, client *http.Client) *didProvider {
	return &didProvider{jobProvider{cfg: cfg, client: client}}
}

// didScriptProviderParam is the params key holding the D-ID voice for text scripts
const didScriptProviderParam = "script_provider"

type didTalk struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     *struct {
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

func (p *didProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Basic " + p.cfg.APIKey}
}

// Submit creates a talk driven by the narration audio, or by the prompt text when there is no audio
func (p *didProvider) Submit(ctx context.Context, in models.VideoInput) (string, error) {
	script, err := p.script(in)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"source_url": in.ImageURL,
		"script":     script,
	}
	for k, v := range p.cfg.Params {
		if k == didScriptProviderParam {
			continue
		}
		body[k] = v
	}

	var talk didTalk
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodPost, p.endpoint("talks"), p.headers(), body, &talk); err != nil {
		return "", err
	}
	if talk.ID == "" {
		return "", fmt.Errorf("%s returned no talk id", p.cfg.ID)
	}
	return talk.ID, nil
}

func (p *didProvider) script(in models.VideoInput) (map[string]any, error) {
	switch {
	case in.AudioURL != "":
		return map[string]any{
			"type":      "audio",
			"audio_url": in.AudioURL,
		}, nil
	case in.Prompt != "":
		script := map[string]any{
			"type":  "text",
			"input": in.Prompt,
		}
		if voice, ok := p.cfg.Params[didScriptProviderParam]; ok {
			script["provider"] = voice
		}
		return script, nil
	default:
		return nil, fmt.Errorf("%s needs audio or a prompt", p.cfg.ID)
	}
}

// FetchStatus reads a talk and normalizes its status
func (p *didProvider) FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	var talk didTalk
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodGet, p.endpoint("talks", jobID), p.headers(), nil, &talk); err != nil {
		return models.JobSnapshot{}, err
	}

	snapshot := models.JobSnapshot{
		Status:    didVocabulary.Normalize(talk.Status),
		OutputURL: talk.ResultURL,
	}
	if talk.Error != nil {
		snapshot.Error = talk.Error.Description
	}
	return snapshot, nil
}

// falProvider runs models through the fal.ai queue API
type falProvider struct {
	jobProvider
}

// NewFalProvider creates a fal.ai queue video provider
func NewFalProvider(cfg config.ProviderConfig, client *http.Client) *falProvider {
	return &falProvider{jobProvider{cfg: cfg, client: client}}
}

type falQueueStatus struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type falResult struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
}

func (p *falProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Key " + p.cfg.APIKey}
}

// Submit enqueues a request and returns its request id
func (p *falProvider) Submit(ctx context.Context, in models.VideoInput) (string, error) {
	input := p.buildInput(in, map[string]string{"prompt": "prompt", "image": "image_url", "audio": "audio_url"})

	var status falQueueStatus
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodPost, p.endpoint(p.cfg.Model), p.headers(), input, &status); err != nil {
		return "", err
	}
	if status.RequestID == "" {
		return "", fmt.Errorf("%s returned no request id", p.cfg.ID)
	}
	return status.RequestID, nil
}

// FetchStatus reads the queue status and, once completed, the result
func (p *falProvider) FetchStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	var status falQueueStatus
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodGet, p.endpoint(falAppID(p.cfg.Model), "requests", jobID, "status"), p.headers(), nil, &status); err != nil {
		return models.JobSnapshot{}, err
	}

	snapshot := models.JobSnapshot{
		Status: falVocabulary.Normalize(status.Status),
		Error:  status.Error,
	}
	if snapshot.Status != models.JobStatusSucceeded {
		return snapshot, nil
	}

	var result falResult
	if err := doJSON(ctx, p.client, p.cfg.ID, http.MethodGet, p.endpoint(falAppID(p.cfg.Model), "requests", jobID), p.headers(), nil, &result); err != nil {
		return models.JobSnapshot{}, err
	}
	snapshot.OutputURL = result.Video.URL
	return snapshot, nil
}

// falAppID strips the route from a model path: requests are submitted to
// "owner/app/route" but polled under "owner/app".
func falAppID(model string) string {
	parts := strings.SplitN(model, "/", 3)
	if len(parts) < 3 {
		return model
	}
	return parts[0] + "/" + parts[1]
}
