package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/emiliopalmerini/elabgate/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	for _, key := range []string{
		"ELAB_URL", "ELAB_API_KEY",
		"ELABGATE_DATABASE_URL", "ELABGATE_DATABASE_TOKEN",
		"ELABGATE_API_TOKEN", "ELABGATE_SESSION_SECRET", "ELABGATE_OTEL_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(home); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func TestLoadUsesEnvFallbacks(t *testing.T) {
	home := isolate(t)
	t.Setenv("ELAB_URL", "https://elab.example.org/api/v2/")
	t.Setenv("ELAB_API_KEY", "3-abcdef")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(home, ".config", "elabgate", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Elab.URL != "https://elab.example.org/api/v2" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Elab.URL)
	}
	if cfg.Elab.APIKey != "3-abcdef" {
		t.Fatalf("expected api key from env, got %q", cfg.Elab.APIKey)
	}
	if cfg.ElabTimeout() != 30*time.Second {
		t.Fatalf("expected default 30s timeout, got %v", cfg.ElabTimeout())
	}
	if !cfg.Elab.VerifyTLS {
		t.Fatal("expected TLS verification on by default")
	}
	wantDB := "file:" + filepath.Join(home, ".local", "share", "elabgate", "elabgate.db")
	if cfg.Database.URL != wantDB {
		t.Fatalf("unexpected database url: got %q want %q", cfg.Database.URL, wantDB)
	}
	if cfg.Server.Bind != "127.0.0.1:8080" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
}

func TestLoadRequiresElabURL(t *testing.T) {
	isolate(t)
	t.Setenv("ELAB_API_KEY", "key")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without elab url")
	}
	if !strings.Contains(err.Error(), "elab.url is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("ELAB_URL", "https://elab.example.org/api/v2")

	_, _, _, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "elab.api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.toml")

	cfg := config.Default()
	cfg.Elab.URL = "http://localhost:3148/api/v2"
	cfg.Elab.APIKey = "file-key"
	cfg.Elab.TimeoutSeconds = 5
	cfg.Elab.SampleTemplates = map[string]string{" Blood ": "Blood Panel"}
	cfg.Database.URL = "libsql://registry.turso.io"
	cfg.Logging.Format = "JSON"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to exist, got %q exists=%v", path, resolved, exists)
	}
	if loaded.ElabTimeout() != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %v", loaded.ElabTimeout())
	}
	if loaded.Logging.Format != "json" {
		t.Fatalf("expected lowercased format, got %q", loaded.Logging.Format)
	}
	if got := loaded.TemplateTitleFor("BLOOD"); got != "Blood Panel" {
		t.Fatalf("TemplateTitleFor(BLOOD) = %q", got)
	}
	if got := loaded.TemplateTitleFor("urine"); got != "Clinical Analysis" {
		t.Fatalf("TemplateTitleFor(urine) = %q, want default title", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Elab.URL = "https://elab.example.org/api/v2"
		cfg.Elab.APIKey = "key"
		cfg.Database.URL = "file:test.db"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"scheme", func(c *config.Config) { c.Elab.URL = "ftp://elab" }, "http or https"},
		{"database", func(c *config.Config) { c.Database.URL = "postgres://x" }, "database.url"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"metrics", func(c *config.Config) { c.Metrics.Enabled = true }, "metrics.endpoint"},
		{"public bind without token", func(c *config.Config) { c.Server.Bind = ":8080" }, "server.api_token"},
		{"wildcard bind without token", func(c *config.Config) { c.Server.Bind = "0.0.0.0:8080" }, "server.api_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "sample", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	t.Setenv("ELAB_API_KEY", "from-env")

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Elab.APIKey != "from-env" {
		t.Fatalf("expected env api key when sample leaves it empty, got %q", cfg.Elab.APIKey)
	}
}

func TestEncodeMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Elab.APIKey = "3-0123456789"
	cfg.Server.APIToken = "abc"

	out, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(out, "3-0123456789") {
		t.Fatalf("api key leaked in output: %s", out)
	}
	if !strings.Contains(out, "3-********89") {
		t.Fatalf("expected masked api key, got %s", out)
	}
	if !strings.Contains(out, "****") {
		t.Fatalf("expected masked api token, got %s", out)
	}
}

func TestValidateServerAllowsLoopbackOrToken(t *testing.T) {
	tests := []struct {
		name  string
		bind  string
		token string
	}{
		{"ipv4 loopback", "127.0.0.1:8080", ""},
		{"ipv6 loopback", "[::1]:8080", ""},
		{"localhost", "localhost:8080", ""},
		{"public with token", ":8080", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.Bind, cfg.Server.APIToken = tt.bind, tt.token
			if err := cfg.ValidateServer(); err != nil {
				t.Fatalf("ValidateServer() error = %v", err)
			}
		})
	}
}
