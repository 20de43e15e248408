package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadTestConfig loads database and Redis settings for integration tests from TEST_* variables.
// Missing variables leave the matching fields empty so tests can fall back to local defaults.
func LoadTestConfig() (*Config, error) {
	// Try both possible paths, the file is optional
	_ = godotenv.Load("./../../configs/.env")
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Redis.Host = os.Getenv("TEST_REDIS_HOST")
	if redisPort := os.Getenv("TEST_REDIS_PORT"); redisPort != "" {
		port, err := strconv.Atoi(redisPort)
		if err != nil {
			return nil, fmt.Errorf("invalid TEST_REDIS_PORT: %w", err)
		}
		cfg.Redis.Port = port
	}

	dbHost := os.Getenv("TEST_DB_HOST")
	if dbHost == "" {
		return cfg, nil
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("TEST_DB_PORT")
	if dbPortStr == "" {
		dbPortStr = "3306"
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid TEST_DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	cfg.Database.User = os.Getenv("TEST_DB_USER")
	cfg.Database.Password = os.Getenv("TEST_DB_PASSWORD")
	cfg.Database.DBName = os.Getenv("TEST_DB_NAME")
	if cfg.Database.User == "" || cfg.Database.DBName == "" {
		// Incomplete settings, use the fallback DSN
		cfg.Database = DatabaseConfig{}
	}

	return cfg, nil
}
