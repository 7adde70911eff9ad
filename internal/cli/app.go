package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emiliopalmerini/elabgate/internal/adapters/otel"
	"github.com/emiliopalmerini/elabgate/internal/adapters/turso"
	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/migrate"
	"github.com/emiliopalmerini/elabgate/internal/ports"
	"github.com/emiliopalmerini/elabgate/internal/relay"
)

// App holds the shared dependencies of the CLI commands.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Repos   *turso.Repositories
	Metrics ports.MetricsExporter
	Elab    *elab.Client
	Relay   *relay.Service
}

// NewApp connects the registry, applies pending migrations and builds the
// relay around a configured eLabFTW client.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := turso.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate.RunAll(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	metrics := otel.New(ctx, otel.ConfigFrom(cfg), logger)

	client, err := elab.New(elab.ConfigFrom(cfg),
		elab.WithRecorder(metrics),
		elab.WithLogger(logger),
	)
	if err != nil {
		_ = metrics.Close(ctx)
		_ = db.Close()
		return nil, fmt.Errorf("create elab client: %w", err)
	}

	repos := turso.NewRepositories(db)
	svc := relay.NewService(relay.Deps{
		Elab:        client,
		Accounts:    repos.Accounts,
		Patients:    repos.Patients,
		Experiments: repos.Experiments,
		Metrics:     metrics,
		Logger:      logger,
		TemplateFor: cfg.TemplateTitleFor,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Repos:   repos,
		Metrics: metrics,
		Elab:    client,
		Relay:   svc,
	}, nil
}

// Close flushes metrics and releases the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close(ctx))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
