package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validSecret = "valid-secret-with-enough-chars"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
hook:
  secret: `+validSecret+`
  url: https://checkhub.example.com/api/hook
github:
  base_url: https://github.example.com/api/v3/
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected default host, got %q", cfg.Server.Host)
	}
	if !cfg.Hook.AllowUnsigned {
		t.Error("Expected unsigned deliveries to be allowed by default")
	}
	if cfg.Hook.RateLimit != DefaultHookRateLimit {
		t.Errorf("Expected default hook rate limit, got %d", cfg.Hook.RateLimit)
	}
	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("Expected default storage path, got %q", cfg.Storage.Path)
	}
	if cfg.GitHub.BaseURL != "https://github.example.com/api/v3/" {
		t.Errorf("Unexpected GitHub base URL %q", cfg.GitHub.BaseURL)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
hook:
  secret: `+validSecret+`
`)
	t.Setenv("CHECKHUB_SERVER__PORT", "7000")
	t.Setenv("CHECKHUB_HOOK__ALLOW_UNSIGNED", "false")
	t.Setenv("CHECKHUB_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port override 7000, got %d", cfg.Server.Port)
	}
	if cfg.Hook.AllowUnsigned {
		t.Error("Expected allow_unsigned override to disable unsigned deliveries")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.Log.Level)
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("CHECKHUB_HOOK__SECRET", validSecret)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected missing file to be tolerated, got %v", err)
	}
	if cfg.Hook.Secret != validSecret {
		t.Errorf("Expected secret from environment, got %q", cfg.Hook.Secret)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected invalid config to be rejected")
	}
	if !strings.Contains(err.Error(), "hook.secret") || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("Expected all problems to be reported, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080},
			Hook:    HookConfig{Secret: validSecret},
			Storage: StorageConfig{Path: "./checkhub.db"},
			Log:     LogConfig{Level: "info"},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"short secret", func(c *Config) { c.Hook.Secret = "short" }, "secret too short"},
		{"placeholder secret", func(c *Config) { c.Hook.Secret = "changeme" }, "placeholder"},
		{"relative hook url", func(c *Config) { c.Hook.URL = "/api/hook" }, "absolute URL"},
		{"negative rate limit", func(c *Config) { c.Hook.RateLimit = -1 }, "must be a positive integer"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"missing storage", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			errs := cfg.Validate()

			if tc.wantErr == "" {
				if len(errs) > 0 {
					t.Errorf("Expected no errors, got %v", errs)
				}
				return
			}

			found := false
			for _, err := range errs {
				if strings.Contains(err, tc.wantErr) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected error containing %q, got %v", tc.wantErr, errs)
			}
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths()
	if len(paths) != 3 {
		t.Fatalf("Expected 3 search paths, got %d", len(paths))
	}
	if filepath.Base(paths[0]) != DefaultFileName {
		t.Errorf("Expected first path to be %s, got %s", DefaultFileName, paths[0])
	}
}
