package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix       = "CHECKHUB_"
	DefaultFileName = "checkhub.yaml"

	MinSecretLength = 16

	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8080
	DefaultEnvironment   = "production"
	DefaultStoragePath   = "./checkhub.db"
	DefaultLogLevel      = "info"
	DefaultHookRateLimit = 60
	DefaultGlobalLimit   = 600
)

var forbiddenSecrets = map[string]bool{
	"replace-with-secret":     true,
	"github-webhook-password": true,
	"topsecret":               true,
	"secret":                  true,
	"password":                true,
	"changeme":                true,
}

// Config is the process configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Hook      HookConfig      `koanf:"hook"`
	GitHub    GitHubConfig    `koanf:"github"`
	Storage   StorageConfig   `koanf:"storage"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Environment string `koanf:"environment"`
	// RateLimit is the global per-IP limit in requests per minute.
	RateLimit int `koanf:"rate_limit"`
}

type HookConfig struct {
	Secret string `koanf:"secret"`
	// URL is the public address of /api/hook registered on repositories.
	URL string `koanf:"url"`
	// AllowUnsigned lets deliveries without a signature header through.
	AllowUnsigned bool `koanf:"allow_unsigned"`
	// RateLimit is the per-IP limit on /api/hook in requests per minute.
	RateLimit int `koanf:"rate_limit"`
}

type GitHubConfig struct {
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	File  string `koanf:"file"`
	Level string `koanf:"level"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads the YAML file at path (optional when empty or missing) and then
// applies CHECKHUB_ environment overrides. Nested keys use "__", for example
// CHECKHUB_HOOK__SECRET.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	defaults := map[string]any{
		"server.host":         DefaultHost,
		"server.port":         DefaultPort,
		"server.environment":  DefaultEnvironment,
		"server.rate_limit":   DefaultGlobalLimit,
		"hook.allow_unsigned": true,
		"hook.rate_limit":     DefaultHookRateLimit,
		"storage.path":        DefaultStoragePath,
		"log.level":           DefaultLogLevel,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("failed to set default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}

	return &cfg, nil
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []string {
	var errs []string

	if c.Hook.Secret == "" {
		errs = append(errs, "  - hook.secret: missing required value")
	} else {
		if len(c.Hook.Secret) < MinSecretLength {
			errs = append(errs, fmt.Sprintf("  - hook.secret: secret too short (minimum %d characters)", MinSecretLength))
		}
		if forbiddenSecrets[strings.ToLower(c.Hook.Secret)] {
			errs = append(errs, "  - hook.secret: secret appears to be a placeholder value, replace with real secret")
		}
	}

	if c.Hook.URL != "" {
		u, err := url.Parse(c.Hook.URL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			errs = append(errs, fmt.Sprintf("  - hook.url: must be an absolute URL, got '%s'", c.Hook.URL))
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("  - server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("  - server.rate_limit: must be a positive integer, got %d", c.Server.RateLimit))
	}
	if c.Hook.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("  - hook.rate_limit: must be a positive integer, got %d", c.Hook.RateLimit))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("  - log.level: must be one of debug, info, warn, error, got '%s'", c.Log.Level))
	}

	if c.Storage.Path == "" {
		errs = append(errs, "  - storage.path: missing required value")
	}

	return errs
}

// DefaultPaths returns the locations searched for the config file, in order.
func DefaultPaths() []string {
	return []string{
		filepath.Join(".", DefaultFileName),
		filepath.Join(".", "config", DefaultFileName),
		filepath.Join("/etc/checkhub", DefaultFileName),
	}
}

// Find returns the first existing path from DefaultPaths, or "".
func Find() string {
	for _, path := range DefaultPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
