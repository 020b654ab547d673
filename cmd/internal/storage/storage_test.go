package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSQLite_MigratesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "invites.db")

	db, err := OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for _, table := range []string{"invite_tokens", "attribution_events"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = db.Close()
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestMigrate_UnknownDialect(t *testing.T) {
	t.Parallel()

	err := Migrate(context.Background(), nil, Dialect("mysql"), nil)
	if !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("err=%v want ErrUnknownDialect", err)
	}
}
