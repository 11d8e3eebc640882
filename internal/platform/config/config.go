// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults for values not set by any layer.
const (
	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20

	DefaultClientRetryMaxAttempts  = 3
	DefaultClientRetryMultiplier   = 2.0
	DefaultClientRetryJitterFactor = 0.25

	// DefaultClientCircuitMaxFailures opens the circuit; DefaultClientCircuitHalfOpenLimit
	// successful trial requests close it again.
	DefaultClientCircuitMaxFailures   = 5
	DefaultClientCircuitHalfOpenLimit = 3

	DefaultTransportMaxIdleConns        = 100
	DefaultTransportMaxIdleConnsPerHost = 10

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28

	// DefaultPublisherMaxLength is the X character limit for a single post.
	DefaultPublisherMaxLength = 280

	// DefaultSchedulerSpec posts once a day at 09:00.
	DefaultSchedulerSpec        = "0 9 * * *"
	DefaultSchedulerHistorySize = 20

	// DefaultConfigDir holds base.yaml and the profile files.
	DefaultConfigDir = "configs"
)

// Storage drivers.
const (
	StorageDriverJSON   = "json"
	StorageDriverSQLite = "sqlite"
)

// Publisher drivers.
const (
	PublisherDriverX      = "x"
	PublisherDriverDryRun = "dry_run"
)

// Scheduler modes.
const (
	ScheduleModeRandomTheme = "random_theme"
	ScheduleModeAny         = "any"
)

// Config is everything quotebot reads at startup. Keys mirror configs/base.yaml.
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`
	Client    ClientConfig    `koanf:"client"    validate:"required"`
	Storage   StorageConfig   `koanf:"storage"   validate:"required"`
	Publisher PublisherConfig `koanf:"publisher" validate:"required"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

// AppConfig identifies the build in logs, spans and /-/build.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig tunes the admin HTTP server.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`

	// RequestTimeout bounds API and form requests, a post's publish included.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"required,min=1s"`
}

type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig mirrors lumberjack.Logger.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// AuthConfig contains gateway-claims settings for mutating routes.
type AuthConfig struct {
	Enabled       bool   `koanf:"enabled"`
	RolesHeader   string `koanf:"roles_header"`
	SubjectHeader string `koanf:"subject_header"`
	RequiredRole  string `koanf:"required_role"`
}

// ClientConfig tunes the HTTP client the x publisher uses.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`
}

type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

// StorageConfig selects and configures the quote store.
type StorageConfig struct {
	Driver      string        `koanf:"driver"       validate:"required,oneof=json sqlite"`
	Path        string        `koanf:"path"         validate:"required"`
	BusyTimeout time.Duration `koanf:"busy_timeout" validate:"omitempty,min=1ms"`
}

// PublisherConfig selects and configures the publisher.
type PublisherConfig struct {
	Driver      string            `koanf:"driver"       validate:"required,oneof=x dry_run"`
	BaseURL     string            `koanf:"base_url"     validate:"required_if=Driver x,omitempty,url"`
	Timeout     time.Duration     `koanf:"timeout"      validate:"required,min=100ms"`
	MaxLength   int               `koanf:"max_length"   validate:"required,min=1"`
	MinInterval time.Duration     `koanf:"min_interval" validate:"min=0"`
	Credentials CredentialsConfig `koanf:"credentials"`
}

// CredentialsConfig holds the opaque X API credentials.
// Either the four OAuth 1.0a values or a bearer token must be set for the x driver.
type CredentialsConfig struct {
	APIKey            string `koanf:"api_key"`
	APISecretKey      string `koanf:"api_secret_key"`
	AccessToken       string `koanf:"access_token"`
	AccessTokenSecret string `koanf:"access_token_secret"`
	BearerToken       string `koanf:"bearer_token"`
}

// HasOAuth1 reports whether all four OAuth 1.0a values are present.
func (c CredentialsConfig) HasOAuth1() bool {
	return c.APIKey != "" && c.APISecretKey != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// SchedulerConfig configures the recurring post trigger.
type SchedulerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Spec        string        `koanf:"spec"         validate:"required_if=Enabled true"`
	Timezone    string        `koanf:"timezone"`
	Mode        string        `koanf:"mode"         validate:"required,oneof=random_theme any"`
	JobTimeout  time.Duration `koanf:"job_timeout"  validate:"required,min=1s"`
	HistorySize int           `koanf:"history_size" validate:"min=1,max=1000"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "quotebot",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "60s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,
		"server.request_timeout":  "45s",

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/quotebot.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "quotebot",
		"telemetry.sampling_rate": 1.0,

		"auth.enabled":        false,
		"auth.roles_header":   "X-User-Roles",
		"auth.subject_header": "X-User-ID",
		"auth.required_role":  "",

		"client.timeout":                           "10s",
		"client.retry.max_attempts":                DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  DefaultClientRetryMultiplier,
		"client.retry.jitter_factor":               DefaultClientRetryJitterFactor,
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   DefaultClientCircuitHalfOpenLimit,
		"client.transport.max_idle_conns":          DefaultTransportMaxIdleConns,
		"client.transport.max_idle_conns_per_host": DefaultTransportMaxIdleConnsPerHost,
		"client.transport.idle_conn_timeout":       "90s",

		"storage.driver":       StorageDriverJSON,
		"storage.path":         "quotes.json",
		"storage.busy_timeout": "5s",

		"publisher.driver":       PublisherDriverDryRun,
		"publisher.base_url":     "https://api.twitter.com",
		"publisher.timeout":      "15s",
		"publisher.max_length":   DefaultPublisherMaxLength,
		"publisher.min_interval": "1m",

		"scheduler.enabled":      true,
		"scheduler.spec":         DefaultSchedulerSpec,
		"scheduler.timezone":     "Local",
		"scheduler.mode":         ScheduleModeRandomTheme,
		"scheduler.job_timeout":  "1m",
		"scheduler.history_size": DefaultSchedulerHistorySize,
	}
}

// credentialEnv maps the bare variable names used in .env files onto config keys.
var credentialEnv = map[string]string{
	"API_KEY":             "publisher.credentials.api_key",
	"API_SECRET_KEY":      "publisher.credentials.api_secret_key",
	"ACCESS_TOKEN":        "publisher.credentials.access_token",
	"ACCESS_TOKEN_SECRET": "publisher.credentials.access_token_secret",
	"BEARER_TOKEN":        "publisher.credentials.bearer_token",
}

// LoadDotEnv reads KEY=VALUE files into the process environment.
// Variables already set are left alone and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("loading %s: %w", p, err)
		}
	}

	return nil
}

// Load reads configuration from DefaultConfigDir. See LoadFrom.
func Load(profile string) (*Config, error) {
	return LoadFrom(DefaultConfigDir, profile)
}

// LoadFrom layers configuration from dir, each layer overriding the last:
//
//	defaults
//	{dir}/base.yaml
//	{dir}/{profile}.yaml
//	bare credential variables (API_KEY, ACCESS_TOKEN, ...)
//	APP_ variables
//
// Missing files are skipped.
func LoadFrom(dir, profile string) (*Config, error) {
	k := koanf.New(".")

	layers := []struct {
		name string
		load func() error
	}{
		{"defaults", func() error { return k.Load(confmap.Provider(defaults(), "."), nil) }},
		{"base config", func() error { return loadFileIfExists(k, filepath.Join(dir, "base.yaml")) }},
		{fmt.Sprintf("profile config %q", profile), func() error {
			if profile == "" {
				return nil
			}

			return loadFileIfExists(k, filepath.Join(dir, profile+".yaml"))
		}},
		{"credentials", func() error { return k.Load(confmap.Provider(credentialsFromEnv(), "."), nil) }},
		{"env vars", func() error { return k.Load(env.Provider("APP_", ".", envKey), nil) }},
	}

	for _, l := range layers {
		if err := l.load(); err != nil {
			return nil, fmt.Errorf("loading %s: %w", l.name, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func credentialsFromEnv() map[string]any {
	creds := make(map[string]any)

	for name, key := range credentialEnv {
		if v := os.Getenv(name); v != "" {
			creds[key] = v
		}
	}

	return creds
}

// envKey maps APP_LOG_LEVEL to log.level. A double underscore separates
// sections when a key itself contains underscores:
// APP_PUBLISHER__MIN_INTERVAL becomes publisher.min_interval.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "APP_"))

	if strings.Contains(s, "__") {
		return strings.ReplaceAll(s, "__", ".")
	}

	return strings.ReplaceAll(s, "_", ".")
}

func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
