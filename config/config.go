// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables take precedence. Command-line flags in cmd/server
// override both.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration.
type Config struct {
	Port        int
	DBPath      string
	StaticDir   string
	CORSOrigins []string

	LogLevel  string
	LogPretty bool

	// Settings used until the settings row is first saved.
	SchoolName        string
	DefaultMonthlyFee int64
	Currency          string

	SweepEnabled  bool
	SweepSchedule string // six-field cron spec (with seconds)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DBPath:            getEnv("DB_PATH", "./data/academy.db"),
		StaticDir:         getEnv("STATIC_DIR", "./web"),
		CORSOrigins:       getEnvAsList("CORS_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", false),
		SchoolName:        getEnv("SCHOOL_NAME", "Academia de Fútbol"),
		DefaultMonthlyFee: int64(getEnvAsInt("DEFAULT_MONTHLY_FEE", 50000)),
		Currency:          getEnv("CURRENCY", "COP"),
		SweepEnabled:      getEnvAsBool("SWEEP_ENABLED", true),
		SweepSchedule:     getEnv("SWEEP_SCHEDULE", "0 0 6 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the values are usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.DefaultMonthlyFee < 0 {
		return fmt.Errorf("DEFAULT_MONTHLY_FEE must not be negative, got %d", c.DefaultMonthlyFee)
	}
	if c.Currency == "" {
		return fmt.Errorf("CURRENCY is required")
	}
	if c.SweepEnabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.SweepSchedule); err != nil {
			return fmt.Errorf("SWEEP_SCHEDULE %q: %w", c.SweepSchedule, err)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
