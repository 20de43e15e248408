package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the provider factory
const (
	ProviderKindOpenAI    = "openai"
	ProviderKindGemini    = "gemini"
	ProviderKindReplicate = "replicate"
	ProviderKindDID       = "did"
	ProviderKindFal       = "fal"
)

// ProviderConfig describes one entry of a provider ladder
type ProviderConfig struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	// MaxInputChars is the content budget for generation providers
	MaxInputChars int     `yaml:"max_input_chars"`
	Temperature   float64 `yaml:"temperature"`
	// Requires lists inputs that must be present before the provider is called ("image", "audio", "prompt")
	Requires []string `yaml:"requires"`
	// InputKeys maps logical inputs to the provider's request field names
	InputKeys map[string]string `yaml:"input_keys"`
	// Params are sent verbatim with every request
	Params map[string]any `yaml:"params"`

	// APIKey is resolved from APIKeyEnv at load time
	APIKey string `yaml:"-"`
}

// Enabled reports whether the provider has the credentials it needs
func (p ProviderConfig) Enabled() bool {
	return p.APIKeyEnv == "" || p.APIKey != ""
}

// VideoLadders holds the ordered video provider ladders
type VideoLadders struct {
	LipSync     []ProviderConfig `yaml:"lip_sync"`
	TextToVideo []ProviderConfig `yaml:"text_to_video"`
}

// ProvidersConfig is the content of the provider ladder file
type ProvidersConfig struct {
	Content []ProviderConfig `yaml:"content"`
	Video   VideoLadders     `yaml:"video"`
}

// LoadProviders reads and validates the provider ladder file
func LoadProviders(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	return ParseProviders(data)
}

// ParseProviders parses ladder YAML and resolves API keys from the environment
func ParseProviders(data []byte) (*ProvidersConfig, error) {
	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	ladders := []struct {
		name    string
		entries []ProviderConfig
		kinds   []string
	}{
		{"content", cfg.Content, []string{ProviderKindOpenAI, ProviderKindGemini}},
		{"video.lip_sync", cfg.Video.LipSync, []string{ProviderKindReplicate, ProviderKindDID, ProviderKindFal}},
		{"video.text_to_video", cfg.Video.TextToVideo, []string{ProviderKindReplicate, ProviderKindFal, ProviderKindDID}},
	}

	seen := make(map[string]bool)
	for _, ladder := range ladders {
		for i := range ladder.entries {
			p := &ladder.entries[i]
			if p.ID == "" {
				return nil, fmt.Errorf("%s[%d]: id is required", ladder.name, i)
			}
			if seen[p.ID] {
				return nil, fmt.Errorf("%s[%d]: duplicate provider id %q", ladder.name, i, p.ID)
			}
			seen[p.ID] = true
			if !slices.Contains(ladder.kinds, p.Kind) {
				return nil, fmt.Errorf("%s[%d]: invalid kind %q", ladder.name, i, p.Kind)
			}
			if p.Endpoint == "" {
				return nil, fmt.Errorf("%s[%d]: endpoint is required", ladder.name, i)
			}
			if p.APIKeyEnv != "" {
				p.APIKey = os.Getenv(p.APIKeyEnv)
			}
		}
	}

	return &cfg, nil
}
