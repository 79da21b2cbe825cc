package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Engine EngineConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr        string
	ReadTimeout time.Duration
	// WriteTimeout of zero leaves the write side unbounded; SSE responses
	// stay open for the whole session lifetime.
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// pub/sub event mirror and the WebSocket observer endpoint.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// EngineConfig holds the agent engine subprocess settings.
type EngineConfig struct {
	Bin     string
	WorkDir string
	Model   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	redisDB, err := getEnvInt("RELAY_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("RELAY_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("RELAY_SERVER_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("RELAY_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnv("RELAY_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Redis: RedisConfig{
			Addr:     getEnv("RELAY_REDIS_ADDR", ""),
			Password: getEnv("RELAY_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Engine: EngineConfig{
			Bin:     getEnv("RELAY_ENGINE_BIN", "claude"),
			WorkDir: getEnv("RELAY_ENGINE_WORKDIR", ""),
			Model:   getEnv("RELAY_ENGINE_MODEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("RELAY_SERVER_ADDR must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("RELAY_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("RELAY_SERVER_WRITE_TIMEOUT must be >= 0, got %s", c.Server.WriteTimeout)
	}
	if c.Engine.Bin == "" {
		return fmt.Errorf("RELAY_ENGINE_BIN must not be empty")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
