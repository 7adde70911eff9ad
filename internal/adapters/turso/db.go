package turso

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/elabgate/internal/config"
)

// NewDB opens the registry database. Local "file:" URLs get their parent
// directory created and foreign keys enabled; remote libsql/http URLs carry
// the auth token as a query parameter.
func NewDB(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	dsn, local, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if local {
		// One writer at a time for the embedded engine.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if local {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return db, nil
}

func dataSourceName(cfg config.Database) (string, bool, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return "", false, fmt.Errorf("database url is required")
	}

	if strings.HasPrefix(raw, "file:") {
		path := strings.TrimPrefix(raw, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if path != "" && !strings.HasPrefix(path, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", false, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return raw, true, nil
	}

	if cfg.AuthToken == "" {
		return raw, false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid database url: %w", err)
	}
	q := u.Query()
	q.Set("authToken", cfg.AuthToken)
	u.RawQuery = q.Encode()
	return u.String(), false, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Fixed-width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
