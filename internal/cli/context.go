package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/domain"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withApp opens the application for the duration of fn.
func (c *commandContext) withApp(ctx context.Context, fn func(*App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))
	return fn(app)
}

// actor resolves the account named by --as.
func actor(ctx context.Context, app *App, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("--as is required")
	}
	account, err := app.Repos.Accounts.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("unknown account %q", name)
	}
	return account, nil
}
