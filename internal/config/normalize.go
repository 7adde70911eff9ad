package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emiliopalmerini/elabgate/internal/util"
)

func (c *Config) normalize() error {
	c.normalizeElab()
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeServer()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizeElab() {
	c.Elab.URL = strings.TrimSpace(c.Elab.URL)
	if c.Elab.URL == "" {
		c.Elab.URL = strings.TrimSpace(os.Getenv("ELAB_URL"))
	}
	c.Elab.URL = strings.TrimRight(c.Elab.URL, "/")

	c.Elab.APIKey = strings.TrimSpace(c.Elab.APIKey)
	if c.Elab.APIKey == "" {
		c.Elab.APIKey = strings.TrimSpace(os.Getenv("ELAB_API_KEY"))
	}

	if c.Elab.TimeoutSeconds <= 0 {
		c.Elab.TimeoutSeconds = defaultTimeoutSeconds
	}
	if strings.TrimSpace(c.Elab.ItemTypeTitle) == "" {
		c.Elab.ItemTypeTitle = defaultItemTypeTitle
	}
	c.Elab.ItemTypeTitle = strings.TrimSpace(c.Elab.ItemTypeTitle)
	if strings.TrimSpace(c.Elab.TemplateTitle) == "" {
		c.Elab.TemplateTitle = defaultTemplateTitle
	}
	c.Elab.TemplateTitle = strings.TrimSpace(c.Elab.TemplateTitle)

	normalized := make(map[string]string, len(c.Elab.SampleTemplates))
	for sample, title := range c.Elab.SampleTemplates {
		key := strings.ToLower(strings.TrimSpace(sample))
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(title)
	}
	c.Elab.SampleTemplates = normalized
}

func (c *Config) normalizeDatabase() error {
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.URL == "" {
		c.Database.URL = strings.TrimSpace(os.Getenv("ELABGATE_DATABASE_URL"))
	}
	c.Database.AuthToken = strings.TrimSpace(c.Database.AuthToken)
	if c.Database.AuthToken == "" {
		c.Database.AuthToken = strings.TrimSpace(os.Getenv("ELABGATE_DATABASE_TOKEN"))
	}

	if c.Database.URL == "" {
		dataDir, err := util.DataDir()
		if err != nil {
			return fmt.Errorf("database.url: %w", err)
		}
		c.Database.URL = "file:" + filepath.Join(dataDir, defaultDatabaseFile)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		c.Server.APIToken = strings.TrimSpace(os.Getenv("ELABGATE_API_TOKEN"))
	}
	c.Server.SessionSecret = strings.TrimSpace(c.Server.SessionSecret)
	if c.Server.SessionSecret == "" {
		c.Server.SessionSecret = strings.TrimSpace(os.Getenv("ELABGATE_SESSION_SECRET"))
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Endpoint = strings.TrimSpace(c.Metrics.Endpoint)
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = strings.TrimSpace(os.Getenv("ELABGATE_OTEL_ENDPOINT"))
	}
}
