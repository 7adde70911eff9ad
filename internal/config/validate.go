package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateElab(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return c.ValidateServer()
}

// ValidateServer checks the listener settings. The JSON API trusts the
// account credential it is given, so it is only reachable beyond the
// local host when an API bearer token guards it.
func (c *Config) ValidateServer() error {
	if c.Server.APIToken != "" {
		return nil
	}
	if !isLoopback(c.Server.Bind) {
		return fmt.Errorf("server.bind %q listens beyond localhost; set server.api_token (or ELABGATE_API_TOKEN) or bind to 127.0.0.1", c.Server.Bind)
	}
	return nil
}

func isLoopback(bind string) bool {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) validateElab() error {
	if c.Elab.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/elabgate/config.toml"
		}
		return fmt.Errorf("elab.url is required. Set ELAB_URL env var or edit %s (create with 'elabgate config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Elab.URL)
	if err != nil {
		return fmt.Errorf("elab.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("elab.url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("elab.url must include a host")
	}
	if c.Elab.APIKey == "" {
		return errors.New("elab.api_key is required. Set ELAB_API_KEY env var or edit the config file")
	}
	if c.Elab.FallbackTemplateID < 0 {
		return errors.New("elab.fallback_template_id must be zero or positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch {
	case strings.HasPrefix(c.Database.URL, "file:"):
		return nil
	case strings.HasPrefix(c.Database.URL, "libsql://"),
		strings.HasPrefix(c.Database.URL, "http://"),
		strings.HasPrefix(c.Database.URL, "https://"):
		return nil
	default:
		return fmt.Errorf("database.url must start with file:, libsql://, http:// or https://, got %q", c.Database.URL)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		return errors.New("metrics.endpoint is required when metrics.enabled is true")
	}
	return nil
}
