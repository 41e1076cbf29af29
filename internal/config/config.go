// Package config loads configuration from an optional YAML file and
// environment variables. Environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// Server
	ListenAddr      string `yaml:"listen_addr"`
	MetricsAddr     string `yaml:"metrics_addr"`
	MaxRequestBytes int64  `yaml:"max_request_bytes"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Database: postgres://... or sqlite://<path>
	DatabaseURL string `yaml:"database_url"`

	// TLS (optional, HTTPS when both are set)
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// Auth
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// EncryptionKey seals stored share passwords.
	EncryptionKey string `yaml:"encryption_key"`

	// Share commands
	CommandTimeout time.Duration `yaml:"command_timeout"` // 0 = no limit
	HistoryTimeout time.Duration `yaml:"history_timeout"`
}

// ValidationError lists every problem found while loading.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Errors, "; ")
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ListenAddr:      ":4000",
		MetricsAddr:     ":9090",
		MaxRequestBytes: 1 << 20,
		MaxUploadBytes:  1 << 30,
		LogLevel:        "info",
		LogFormat:       "json",
		DatabaseURL:     "sqlite://nas.db",
		TokenTTL:        7 * 24 * time.Hour,
		HistoryTimeout:  5 * time.Second,
	}
}

// Load reads CONFIG_FILE (if set) over the defaults, then applies
// environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	var errs []string
	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = envOr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.MaxRequestBytes = envInt64("MAX_REQUEST_BYTES", cfg.MaxRequestBytes, &errs)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes, &errs)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.TLSCertFile = envOr("TLS_CERT_FILE", cfg.TLSCertFile)
	cfg.TLSKeyFile = envOr("TLS_KEY_FILE", cfg.TLSKeyFile)
	cfg.JWTSecret = envOr("JWT_SECRET", cfg.JWTSecret)
	cfg.EncryptionKey = envOr("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.TokenTTL = envDuration("TOKEN_TTL", cfg.TokenTTL, &errs)
	cfg.CommandTimeout = envDuration("COMMAND_TIMEOUT", cfg.CommandTimeout, &errs)
	cfg.HistoryTimeout = envDuration("HISTORY_TIMEOUT", cfg.HistoryTimeout, &errs)

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() []string {
	var errs []string
	if c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if c.EncryptionKey == "" {
		errs = append(errs, "ENCRYPTION_KEY is required")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, "TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, "TOKEN_TTL must be positive")
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, "COMMAND_TIMEOUT must not be negative")
	}
	if c.HistoryTimeout <= 0 {
		errs = append(errs, "HISTORY_TIMEOUT must be positive")
	}
	if c.MaxRequestBytes <= 0 {
		errs = append(errs, "MAX_REQUEST_BYTES must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, "MAX_UPLOAD_BYTES must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT %q must be json or console", c.LogFormat))
	}
	return errs
}

// TLSEnabled reports whether the API should serve HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64, errs *[]string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return d
}
