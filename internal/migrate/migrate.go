// Package migrate applies the embedded registry migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/migrations"
)

// Migration represents a single database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Runner applies migrations read from source to db.
type Runner struct {
	db     *sql.DB
	source fs.FS
	logger *slog.Logger
}

// NewRunner returns a runner over the embedded migrations. A nil logger
// discards progress output.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	return &Runner{
		db:     db,
		source: migrations.FS,
		logger: logging.NewComponentLogger(logger, "migrate"),
	}
}

// WithSource replaces the migration files, for tests.
func (r *Runner) WithSource(source fs.FS) *Runner {
	r.source = source
	return r
}

// EnsureTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Version returns the current migration version and dirty state.
func (r *Runner) Version(ctx context.Context) (int, bool, error) {
	var version, dirty int
	err := r.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty == 1, nil
}

func (r *Runner) setVersion(ctx context.Context, version int, dirty bool) error {
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	if version <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirtyInt)
	return err
}

var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Load reads all migration files and returns them sorted by version.
func (r *Runner) Load() ([]Migration, error) {
	var result []Migration

	err := fs.WalkDir(r.source, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matches := upPattern.FindStringSubmatch(path.Base(p))
		if matches == nil {
			return nil
		}

		version, _ := strconv.Atoi(matches[1])
		upSQL, err := fs.ReadFile(r.source, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		downPath := path.Join(path.Dir(p), matches[1]+"_"+matches[2]+".down.sql")
		downSQL, _ := fs.ReadFile(r.source, downPath)

		result = append(result, Migration{
			Version: version,
			Name:    matches[2],
			UpSQL:   string(upSQL),
			DownSQL: string(downSQL),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

func (r *Runner) apply(ctx context.Context, m Migration, up bool) error {
	direction := "up"
	sqlContent := m.UpSQL
	targetVersion := m.Version
	if !up {
		direction = "down"
		sqlContent = m.DownSQL
		targetVersion = m.Version - 1
	}

	r.logger.InfoContext(ctx, "applying migration",
		logging.String("direction", direction),
		logging.Int("version", m.Version),
		logging.String("name", m.Name),
	)

	if err := r.setVersion(ctx, m.Version, true); err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}
	for _, stmt := range SplitSQL(sqlContent) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d %s: %w\nSQL: %s", m.Version, direction, err, stmt)
		}
	}
	if err := r.setVersion(ctx, targetVersion, false); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// SplitSQL splits a SQL script on semicolons, dropping empty statements.
func SplitSQL(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func (r *Runner) prepare(ctx context.Context) (int, []Migration, error) {
	if err := r.EnsureTable(ctx); err != nil {
		return 0, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	current, dirty, err := r.Version(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return 0, nil, fmt.Errorf("database is in dirty state at version %d", current)
	}
	all, err := r.Load()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return current, all, nil
}

// Up runs all pending migrations and returns how many were applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	current, all, err := r.prepare(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, m := range all {
		if m.Version <= current {
			continue
		}
		if err := r.apply(ctx, m, true); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// To migrates up or down until target is the current version.
func (r *Runner) To(ctx context.Context, target int) error {
	current, all, err := r.prepare(ctx)
	if err != nil {
		return err
	}

	if target >= current {
		for _, m := range all {
			if m.Version <= current {
				continue
			}
			if m.Version > target {
				break
			}
			if err := r.apply(ctx, m, true); err != nil {
				return err
			}
		}
		return nil
	}

	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if m.Version > current {
			continue
		}
		if m.Version <= target {
			break
		}
		if m.DownSQL == "" {
			return fmt.Errorf("no down migration for version %d", m.Version)
		}
		if err := r.apply(ctx, m, false); err != nil {
			return err
		}
	}
	return nil
}

// RunAll runs all pending migrations on db without progress output.
func RunAll(ctx context.Context, db *sql.DB) error {
	_, err := NewRunner(db, nil).Up(ctx)
	return err
}
