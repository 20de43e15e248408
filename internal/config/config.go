// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Logging   LoggingConfig
	CORS      CORSConfig
	Storage   StorageConfig
	TTS       TTSConfig
	Extractor ExtractorConfig
	Poll      PollConfig
	Queue     QueueConfig
	APIKey    string
	// ProvidersFile is the path of the YAML file describing provider ladders
	ProvidersFile string
	HTTPTimeout   time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// StorageBackend selects where generated media is stored
type StorageBackend string

const (
	StorageBackendLocal    StorageBackend = "local"
	StorageBackendSupabase StorageBackend = "supabase"
)

// StorageConfig holds media storage settings
type StorageConfig struct {
	Backend      StorageBackend
	Bucket       string
	LocalPath    string
	LocalBaseURL string
	SupabaseURL  string
	SupabaseKey  string
}

// TTSConfig holds text-to-speech provider settings
type TTSConfig struct {
	BaseURL        string
	APIKey         string
	ModelID        string
	DefaultVoiceID string
}

// ExtractorConfig holds document text extraction service settings
type ExtractorConfig struct {
	URL string
}

// PollConfig holds async job polling settings
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// QueueConfig holds generation task queue settings
type QueueConfig struct {
	Concurrency int
	MaxRetry    int
	TaskTimeout time.Duration
	RunStateTTL time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Database configuration
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return nil, fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName

	// Server configuration
	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080" // default port
	}
	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	cfg.Server.Port = serverPort

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	cfg.CORS.AllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	// API Key configuration (required, protects the generation endpoints)
	cfg.APIKey = os.Getenv("API_KEY")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}

	// Redis configuration
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost" // default
	}
	cfg.Redis.Host = redisHost

	redisPortStr := os.Getenv("REDIS_PORT")
	if redisPortStr == "" {
		redisPortStr = "6379" // default
	}
	redisPort, err := strconv.Atoi(redisPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Port = redisPort

	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD") // optional

	redisDBStr := os.Getenv("REDIS_DB")
	if redisDBStr == "" {
		redisDBStr = "0" // default
	}
	redisDB, err := strconv.Atoi(redisDBStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB

	// Storage configuration
	if err := loadStorage(cfg); err != nil {
		return nil, err
	}

	// Text-to-speech configuration
	ttsBaseURL := os.Getenv("TTS_BASE_URL")
	if ttsBaseURL == "" {
		ttsBaseURL = "https://api.elevenlabs.io" // default
	}
	cfg.TTS.BaseURL = strings.TrimRight(ttsBaseURL, "/")
	cfg.TTS.APIKey = os.Getenv("TTS_API_KEY") // optional, narration is skipped without it

	ttsModel := os.Getenv("TTS_MODEL_ID")
	if ttsModel == "" {
		ttsModel = "eleven_multilingual_v2" // default
	}
	cfg.TTS.ModelID = ttsModel

	defaultVoice := os.Getenv("TTS_DEFAULT_VOICE_ID")
	if defaultVoice == "" {
		defaultVoice = "21m00Tcm4TlvDq8ikWAM" // default
	}
	cfg.TTS.DefaultVoiceID = defaultVoice

	// Extractor configuration (optional, placeholder text is used without it)
	cfg.Extractor.URL = os.Getenv("EXTRACTOR_URL")

	// Provider ladder file
	providersFile := os.Getenv("PROVIDERS_FILE")
	if providersFile == "" {
		providersFile = "configs/providers.yaml" // default
	}
	cfg.ProvidersFile = providersFile

	cfg.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	// Polling configuration
	cfg.Poll.Interval, err = durationEnv("POLL_INTERVAL", "2s")
	if err != nil {
		return nil, err
	}
	cfg.Poll.MaxAttempts, err = intEnv("POLL_MAX_ATTEMPTS", "120")
	if err != nil {
		return nil, err
	}

	// Queue configuration
	cfg.Queue.Concurrency, err = intEnv("QUEUE_CONCURRENCY", "4")
	if err != nil {
		return nil, err
	}
	cfg.Queue.MaxRetry, err = intEnv("QUEUE_MAX_RETRY", "2")
	if err != nil {
		return nil, err
	}
	cfg.Queue.TaskTimeout, err = durationEnv("QUEUE_TASK_TIMEOUT", "2h")
	if err != nil {
		return nil, err
	}
	cfg.Queue.RunStateTTL, err = durationEnv("RUN_STATE_TTL", "72h")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadStorage reads the storage backend settings
func loadStorage(cfg *Config) error {
	backend := StorageBackend(os.Getenv("STORAGE_BACKEND"))
	if backend == "" {
		backend = StorageBackendLocal // default
	}

	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" {
		bucket = "course-media" // default
	}
	cfg.Storage.Bucket = bucket

	switch backend {
	case StorageBackendLocal:
		basePath := os.Getenv("MEDIA_BASE_PATH")
		if basePath == "" {
			basePath = "./media" // default
		}
		cfg.Storage.LocalPath = basePath

		baseURL := os.Getenv("MEDIA_BASE_URL")
		if baseURL == "" {
			return fmt.Errorf("MEDIA_BASE_URL is required for local storage")
		}
		cfg.Storage.LocalBaseURL = strings.TrimRight(baseURL, "/")
	case StorageBackendSupabase:
		supabaseURL := os.Getenv("SUPABASE_URL")
		if supabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required for supabase storage")
		}
		cfg.Storage.SupabaseURL = supabaseURL

		supabaseKey := os.Getenv("SUPABASE_SERVICE_KEY")
		if supabaseKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_KEY is required for supabase storage")
		}
		cfg.Storage.SupabaseKey = supabaseKey
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", backend)
	}
	cfg.Storage.Backend = backend

	return nil
}

// parseOrigins parses comma-separated CORS origins, defaulting to all origins
func parseOrigins(raw string) []string {
	if raw == "" {
		// Default to allow all origins if not specified (for development)
		return []string{"*"}
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, origin := range parts {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	// If no valid origins found, default to allow all
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func durationEnv(key, def string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		raw = def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key, def string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		raw = def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
