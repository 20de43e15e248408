package main

import (
	"fmt"
	"net/http"

	"github.com/japanesestudent/coursegen/internal/config"
	"github.com/japanesestudent/coursegen/internal/providers"
	"github.com/japanesestudent/coursegen/internal/services"
	"github.com/japanesestudent/coursegen/internal/storage"
	"go.uber.org/zap"
)

// buildContentProviders turns the content ladder into providers, skipping entries without credentials
func buildContentProviders(cfgs []config.ProviderConfig, client *http.Client, logger *zap.Logger) []services.ContentProvider {
	ladder := make([]services.ContentProvider, 0, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.Enabled() {
			logger.Info("content provider disabled, missing credentials", zap.String("provider", cfg.ID), zap.String("env", cfg.APIKeyEnv))
			continue
		}
		switch cfg.Kind {
		case config.ProviderKindOpenAI:
			ladder = append(ladder, providers.NewChatProvider(cfg, client))
		case config.ProviderKindGemini:
			ladder = append(ladder, providers.NewGeminiProvider(cfg, client))
		default:
			logger.Warn("unsupported content provider kind", zap.String("provider", cfg.ID), zap.String("kind", cfg.Kind))
		}
	}
	return ladder
}

// buildVideoProviders turns a video ladder into providers, skipping entries without credentials
func buildVideoProviders(cfgs []config.ProviderConfig, client *http.Client, logger *zap.Logger) []services.VideoProvider {
	ladder := make([]services.VideoProvider, 0, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.Enabled() {
			logger.Info("video provider disabled, missing credentials", zap.String("provider", cfg.ID), zap.String("env", cfg.APIKeyEnv))
			continue
		}
		switch cfg.Kind {
		case config.ProviderKindReplicate:
			ladder = append(ladder, providers.NewReplicateProvider(cfg, client))
		case config.ProviderKindDID:
			ladder = append(ladder, providers.NewDIDProvider(cfg, client))
		case config.ProviderKindFal:
			ladder = append(ladder, providers.NewFalProvider(cfg, client))
		default:
			logger.Warn("unsupported video provider kind", zap.String("provider", cfg.ID), zap.String("kind", cfg.Kind))
		}
	}
	return ladder
}

// newObjectStorage creates the configured storage backend
func newObjectStorage(cfg config.StorageConfig) (services.ObjectStorage, error) {
	switch cfg.Backend {
	case config.StorageBackendLocal:
		return storage.NewLocalStorage(cfg.LocalPath, cfg.LocalBaseURL, cfg.Bucket), nil
	case config.StorageBackendSupabase:
		s, err := storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
