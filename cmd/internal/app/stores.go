package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"invitetrack/cmd/internal/attribution"
	"invitetrack/cmd/internal/invite"
	"invitetrack/cmd/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// stores bundles the persistence backends chosen by Config.Store.
type stores struct {
	kind    string
	invites invite.Store
	events  attribution.Store

	pool *pgxpool.Pool
	db   *sql.DB
}

// openStores opens and migrates the configured backend.
//
// Ownership model: stores owns the pool or *sql.DB; the per-table store
// Close methods release nothing shared.
func openStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	switch cfg.Store {
	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg.DB, log)
		if err != nil {
			return nil, err
		}
		if err := storage.MigratePostgres(ctx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}
		inv, err := invite.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		evs, err := attribution.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("store.enabled", "kind", StorePostgres)
		return &stores{kind: StorePostgres, invites: inv, events: evs, pool: pool}, nil

	case StoreSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		inv, err := invite.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		evs, err := attribution.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("store.enabled", "kind", StoreSQLite, "path", cfg.SQLitePath)
		return &stores{kind: StoreSQLite, invites: inv, events: evs, db: db}, nil

	default:
		log.Info("store.enabled", "kind", StoreMemory)
		return &stores{
			kind:    StoreMemory,
			invites: invite.NewInMemoryStore(),
			events:  attribution.NewInMemoryStore(),
		}, nil
	}
}

// ready checks that the backing database answers.
func (s *stores) ready(ctx context.Context) error {
	switch {
	case s.pool != nil:
		return PingDB(ctx, s.pool, 2*time.Second)
	case s.db != nil:
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return s.db.PingContext(ctx)
	default:
		return nil
	}
}

func (s *stores) Close() error {
	err := errors.Join(s.invites.Close(), s.events.Close())
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}
