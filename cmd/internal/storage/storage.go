// Package storage opens the durable backends and applies schema migrations.
//
// The stores themselves live next to their domain (invite, attribution);
// this package only owns connections and the embedded migration sets.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// Dialect selects a migration set.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// PostgresSchema is the schema the Postgres migrations create.
const PostgresSchema = "invitetrack"

var ErrUnknownDialect = errors.New("storage: unknown dialect")

// OpenSQLite opens (creating if needed) the SQLite database at path and migrates it.
//
// The handle is limited to one connection: SQLite serializes writers anyway
// and a single connection keeps transactions from hitting SQLITE_BUSY.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: empty sqlite path")
	}

	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if err := Migrate(ctx, db, DialectSQLite, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// MigratePostgres applies the Postgres migration set through the pool.
// The pool stays open; only the temporary database/sql wrapper is closed.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if pool == nil {
		return errors.New("storage: nil pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return Migrate(ctx, db, DialectPostgres, log)
}

// Migrate brings db up to the latest version of the dialect's migration set.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	var gd goose.Dialect
	switch d {
	case DialectPostgres:
		gd = goose.DialectPostgres
	case DialectSQLite:
		gd = goose.DialectSQLite3
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDialect, d)
	}

	sub, err := fs.Sub(migrations, "migrations/"+string(d))
	if err != nil {
		return fmt.Errorf("storage: migrations: %w", err)
	}
	provider, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return fmt.Errorf("storage: migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("storage: migrate %s: %w", d, err)
	}
	for _, r := range results {
		log.Info("storage.migration.applied",
			"dialect", string(d),
			"version", r.Source.Version,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}
	return nil
}
