// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty selects the in-memory stores (development only).
	DatabaseURL string `koanf:"database_url"`

	// JWT authentication. Access and refresh tokens are signed with
	// separate secrets so one can be rotated without the other.
	AccessTokenSecret  string `koanf:"access_token_secret"`
	RefreshTokenSecret string `koanf:"refresh_token_secret"`

	// S3-compatible object storage for record attachments.
	S3Bucket          string `koanf:"s3_bucket"`
	S3Region          string `koanf:"s3_region"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3Endpoint        string `koanf:"s3_endpoint"` // optional, for S3-compatible providers

	// Frontend base URL used in password-reset links.
	FrontendURL string `koanf:"frontend_url"`

	// SMTP for password-reset mail. Mail is disabled when host is empty.
	SMTPHost string `koanf:"smtp_host"`
	SMTPPort int    `koanf:"smtp_port"`
	SMTPFrom string `koanf:"smtp_from"`

	// Redis for the shared login rate limiter. Empty selects the
	// in-process store.
	RedisAddr string `koanf:"redis_addr"`

	// CivilOffsetHours is the fixed UTC offset of the deployment's civil
	// clock. Serial identifiers are date-scoped in this offset so the
	// date part matches the user's wall calendar, not server UTC.
	CivilOffsetHours int `koanf:"civil_offset_hours"`
}

// Configuration validation errors.
var (
	ErrMissingAccessSecret  = errors.New("ACCESS_TOKEN_SECRET is required")
	ErrMissingRefreshSecret = errors.New("REFRESH_TOKEN_SECRET is required")
	ErrMissingS3Bucket      = errors.New("S3_BUCKET is required")
	ErrMissingS3Region      = errors.New("S3_REGION is required")
	ErrMissingS3AccessKey   = errors.New("S3_ACCESS_KEY_ID is required")
	ErrMissingS3SecretKey   = errors.New("S3_SECRET_ACCESS_KEY is required")
	ErrInvalidPort          = errors.New("PORT must be a valid integer")
	ErrInvalidSMTPPort      = errors.New("SMTP_PORT must be a valid integer")
	ErrInvalidCivilOffset   = errors.New("CIVIL_OFFSET_HOURS must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort             = 3500
	DefaultEnv              = "development"
	DefaultFrontendURL      = "http://localhost:5173"
	DefaultSMTPPort         = 587
	DefaultCivilOffsetHours = 3 // Arabia Standard Time, no DST
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort, ErrInvalidPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	smtpPort, smtpPortErr := getEnvIntOrDefault("SMTP_PORT", k.Int("smtp_port"), DefaultSMTPPort, ErrInvalidSMTPPort)
	if smtpPortErr != nil {
		loadErrs = append(loadErrs, smtpPortErr)
	}

	civilOffset, offsetErr := getEnvIntOrDefault("CIVIL_OFFSET_HOURS", k.Int("civil_offset_hours"), DefaultCivilOffsetHours, ErrInvalidCivilOffset)
	if offsetErr != nil {
		loadErrs = append(loadErrs, offsetErr)
	}

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefault("DIWAN_ENV", k.String("env"), DefaultEnv),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		AccessTokenSecret:  getEnvOrKoanf("ACCESS_TOKEN_SECRET", k, "access_token_secret"),
		RefreshTokenSecret: getEnvOrKoanf("REFRESH_TOKEN_SECRET", k, "refresh_token_secret"),
		S3Bucket:           getEnvOrKoanf("S3_BUCKET", k, "s3_bucket"),
		S3Region:           getEnvOrKoanf("S3_REGION", k, "s3_region"),
		S3AccessKeyID:      getEnvOrKoanf("S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey:  getEnvOrKoanf("S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		S3Endpoint:         getEnvOrKoanf("S3_ENDPOINT", k, "s3_endpoint"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", k.String("frontend_url"), DefaultFrontendURL),
		SMTPHost:           getEnvOrKoanf("SMTP_HOST", k, "smtp_host"),
		SMTPPort:           smtpPort,
		SMTPFrom:           getEnvOrKoanf("SMTP_FROM", k, "smtp_from"),
		RedisAddr:          getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		CivilOffsetHours:   civilOffset,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// A set-but-unparsable environment variable yields the variable's own sentinel error.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int, invalid error) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("parse %s=%q: %w", envKey, val, invalid)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.AccessTokenSecret == "" {
		errs = append(errs, ErrMissingAccessSecret)
	}
	if c.RefreshTokenSecret == "" {
		errs = append(errs, ErrMissingRefreshSecret)
	}

	// S3 configuration is optional. Only validate fields if any S3 value is set.
	if c.S3Bucket != "" || c.S3AccessKeyID != "" || c.S3SecretAccessKey != "" || c.S3Region != "" {
		if c.S3Bucket == "" {
			errs = append(errs, ErrMissingS3Bucket)
		}
		if c.S3Region == "" {
			errs = append(errs, ErrMissingS3Region)
		}
		if c.S3AccessKeyID == "" {
			errs = append(errs, ErrMissingS3AccessKey)
		}
		if c.S3SecretAccessKey == "" {
			errs = append(errs, ErrMissingS3SecretKey)
		}
	}

	return errs
}

// Production reports whether the server runs with production hardening
// (secure cookies, JSON logs).
func (c *Config) Production() bool {
	return c.Env == "production"
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                 fmt.Sprintf("%d", c.Port),
		"env":                  c.Env,
		"database_url":         maskDatabaseURL(c.DatabaseURL),
		"access_token_secret":  maskSecret(c.AccessTokenSecret),
		"refresh_token_secret": maskSecret(c.RefreshTokenSecret),
		"s3_bucket":            c.S3Bucket,
		"s3_region":            c.S3Region,
		"s3_access_key_id":     maskSecret(c.S3AccessKeyID),
		"s3_secret_access_key": maskSecret(c.S3SecretAccessKey),
		"s3_endpoint":          c.S3Endpoint,
		"frontend_url":         c.FrontendURL,
		"smtp_host":            c.SMTPHost,
		"smtp_port":            fmt.Sprintf("%d", c.SMTPPort),
		"smtp_from":            c.SMTPFrom,
		"redis_addr":           c.RedisAddr,
		"civil_offset_hours":   fmt.Sprintf("%d", c.CivilOffsetHours),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
