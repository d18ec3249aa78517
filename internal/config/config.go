package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Upload  UploadConfig
	Log     LogConfig
	Dev     bool
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// BackendConfig points at the remote inference service.
type BackendConfig struct {
	BaseURL    string
	MatchCount int
	Timeout    time.Duration
}

// UploadConfig bounds client-side file acceptance.
type UploadConfig struct {
	MaxBytes int64
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string
	Format string // json | console
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	upload, err := loadUploadConfig()
	if err != nil {
		return nil, err
	}

	dev, err := parseBoolEnv("DEV", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Backend: backend,
		Upload:  upload,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
		Dev: dev,
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// Accept ":3000" or "127.0.0.1:3000" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadBackendConfig() (BackendConfig, error) {
	matchCount := 2
	if override, err := parseOptionalIntEnv("RAG_MATCH_COUNT"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return BackendConfig{}, fmt.Errorf("RAG_MATCH_COUNT must be positive, got %d", *override)
		}
		matchCount = *override
	}

	timeoutSeconds := 120
	if override, err := parseOptionalIntEnv("RAG_TIMEOUT_SECONDS"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}

	return BackendConfig{
		BaseURL:    getEnvOrDefault("RAG_API_URL", "http://localhost:8000"),
		MatchCount: matchCount,
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func loadUploadConfig() (UploadConfig, error) {
	maxMB := 50
	if override, err := parseOptionalIntEnv("MAX_UPLOAD_MB"); err != nil {
		return UploadConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return UploadConfig{}, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", *override)
		}
		maxMB = *override
	}
	return UploadConfig{MaxBytes: int64(maxMB) * 1024 * 1024}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
