package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/emiliopalmerini/elabgate/internal/util"
)

//go:embed sample_config.toml
var sampleConfig string

// Elab contains connection settings for the upstream eLabFTW instance.
type Elab struct {
	URL                string            `toml:"url"`
	APIKey             string            `toml:"api_key"`
	VerifyTLS          bool              `toml:"verify_tls"`
	TimeoutSeconds     int               `toml:"timeout_seconds"`
	ItemTypeTitle      string            `toml:"item_type_title"`
	TemplateTitle      string            `toml:"template_title"`
	FallbackTemplateID int64             `toml:"fallback_template_id"`
	SampleTemplates    map[string]string `toml:"sample_templates"`
}

// Database contains the local registry connection settings.
type Database struct {
	URL       string `toml:"url"`
	AuthToken string `toml:"auth_token"`
}

// Server contains HTTP listener and access settings.
type Server struct {
	Bind          string `toml:"bind"`
	APIToken      string `toml:"api_token"`
	SessionSecret string `toml:"session_secret"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Metrics contains the OTLP metrics exporter settings.
type Metrics struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Insecure bool   `toml:"insecure"`
}

// Config is loaded once at startup and handed to every component that needs it.
//
// Sections:
//   - Elab: upstream base URL, API key and environment titles
//   - Database: local registry (libsql file or Turso URL)
//   - Server: bind address, API bearer token, session cookie secret
//   - Logging: log format, level and optional directory
//   - Metrics: OTLP exporter for upstream call metrics
type Config struct {
	Elab     Elab     `toml:"elab"`
	Database Database `toml:"database"`
	Server   Server   `toml:"server"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	dir, err := util.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load locates, parses, and validates a configuration file. Missing files are
// not an error; defaults and environment fallbacks apply instead.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("elabgate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ElabTimeout returns the per-request timeout for upstream calls.
func (c *Config) ElabTimeout() time.Duration {
	if c.Elab.TimeoutSeconds <= 0 {
		return time.Duration(defaultTimeoutSeconds) * time.Second
	}
	return time.Duration(c.Elab.TimeoutSeconds) * time.Second
}

// TemplateTitleFor returns the template title configured for a sample type,
// falling back to the default template title.
func (c *Config) TemplateTitleFor(sampleType string) string {
	key := strings.ToLower(strings.TrimSpace(sampleType))
	if key != "" {
		if title, ok := c.Elab.SampleTemplates[key]; ok && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title)
		}
	}
	return c.Elab.TemplateTitle
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML with secrets masked.
func (c *Config) Encode() (string, error) {
	masked := *c
	masked.Elab.APIKey = mask(masked.Elab.APIKey)
	masked.Database.AuthToken = mask(masked.Database.AuthToken)
	masked.Server.APIToken = mask(masked.Server.APIToken)
	masked.Server.SessionSecret = mask(masked.Server.SessionSecret)
	out, err := toml.Marshal(masked)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(out), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}
