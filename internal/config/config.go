package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/stratum/internal/filecheck"
	"github.com/MimeLyc/stratum/pkg/log"
)

// Config holds all application configuration, read from the environment.
//
// Environment Variables:
// Backend API:
// - STRATUM_API_URL: backend base URL (default: http://localhost:8080/api)
// - STRATUM_API_TIMEOUT: per-request timeout in seconds (default: 30)
// - STRATUM_API_RETRIES: retries for idempotent GETs (default: 3)
//
// Polling:
// - POLL_INTERVAL_MS: delay between status queries (default: 1000)
// - POLL_TIMEOUT_MS: polling budget (default: 300000)
//
// Upload:
// - UPLOAD_MAX_SIZE_MB: maximum upload size (default: 50)
// - UPLOAD_ACCEPTED_TYPES: comma separated MIME types (default: png, jpeg, webp, dds)
//
// Watch service:
// - HTTP_ADDR: dashboard listen address (default: :8090)
// - HTTP_STATIC_DIR: built dashboard assets; empty disables the UI (default: empty)
// - WATCH_WORKERS: concurrent polls (default: 4)
// - WATCH_MAX_ENTRIES: retained watches (default: 1000)
// - WATCH_RETENTION_HOURS: age after which finished watches are pruned (default: 24)
// - PRUNE_CRON: prune schedule (default: @hourly)
//
// System:
// - DATA_DIR: state directory (default: /app/data)
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: append log lines to this file instead of stdout (default: empty)
type Config struct {
	API    APIConfig    `json:"api"`
	Poll   PollConfig   `json:"poll"`
	Upload UploadConfig `json:"upload"`
	HTTP   HTTPConfig   `json:"http"`
	Watch  WatchConfig  `json:"watch"`
	System SystemConfig `json:"system"`
}

type APIConfig struct {
	BaseURL string `json:"base_url"`
	Timeout int    `json:"timeout"`
	Retries int    `json:"retries"`
}

func (c APIConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

type PollConfig struct {
	IntervalMS int `json:"interval_ms"`
	TimeoutMS  int `json:"timeout_ms"`
}

func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c PollConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type UploadConfig struct {
	MaxSizeMB     float64  `json:"max_size_mb"`
	AcceptedTypes []string `json:"accepted_types"`
}

func (c UploadConfig) FilecheckOptions() filecheck.Options {
	return filecheck.Options{
		AcceptedTypes: c.AcceptedTypes,
		MaxSizeMB:     c.MaxSizeMB,
	}
}

type HTTPConfig struct {
	Addr      string `json:"addr"`
	StaticDir string `json:"static_dir"`
}

type WatchConfig struct {
	Workers        int    `json:"workers"`
	MaxEntries     int    `json:"max_entries"`
	RetentionHours int    `json:"retention_hours"`
	PruneCron      string `json:"prune_cron"`
}

func (c WatchConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "stratum.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithBaseURL(u string) Option {
	return func(c *Config) {
		if strings.TrimSpace(u) != "" {
			c.API.BaseURL = u
		}
	}
}

func WithPoll(interval, timeout time.Duration) Option {
	return func(c *Config) {
		if interval != 0 {
			c.Poll.IntervalMS = int(interval / time.Millisecond)
		}
		if timeout != 0 {
			c.Poll.TimeoutMS = int(timeout / time.Millisecond)
		}
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		API: APIConfig{
			BaseURL: getEnvString("STRATUM_API_URL", "http://localhost:8080/api"),
			Timeout: getEnvInt("STRATUM_API_TIMEOUT", 30),
			Retries: getEnvInt("STRATUM_API_RETRIES", 3),
		},
		Poll: PollConfig{
			IntervalMS: getEnvInt("POLL_INTERVAL_MS", 1000),
			TimeoutMS:  getEnvInt("POLL_TIMEOUT_MS", 300000),
		},
		Upload: UploadConfig{
			MaxSizeMB:     getEnvFloat("UPLOAD_MAX_SIZE_MB", filecheck.DefaultMaxSizeMB),
			AcceptedTypes: getEnvList("UPLOAD_ACCEPTED_TYPES", filecheck.DefaultAcceptedTypes),
		},
		HTTP: HTTPConfig{
			Addr:      getEnvString("HTTP_ADDR", ":8090"),
			StaticDir: getEnvString("HTTP_STATIC_DIR", ""),
		},
		Watch: WatchConfig{
			Workers:        getEnvInt("WATCH_WORKERS", 4),
			MaxEntries:     getEnvInt("WATCH_MAX_ENTRIES", 1000),
			RetentionHours: getEnvInt("WATCH_RETENTION_HOURS", 24),
			PruneCron:      getEnvString("PRUNE_CRON", "@hourly"),
		},
		System: SystemConfig{
			DataDir:  getEnvString("DATA_DIR", "/app/data"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			LogFile:  getEnvString("LOG_FILE", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", config)
	return config, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("STRATUM_API_URL must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.Poll.IntervalMS <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.Poll.TimeoutMS <= 0 {
		return fmt.Errorf("POLL_TIMEOUT_MS must be positive")
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("UPLOAD_MAX_SIZE_MB must be positive")
	}
	if len(c.Upload.AcceptedTypes) == 0 {
		return fmt.Errorf("UPLOAD_ACCEPTED_TYPES must not be empty")
	}
	if _, err := cron.ParseStandard(c.Watch.PruneCron); err != nil {
		return fmt.Errorf("invalid PRUNE_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	ret := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}
