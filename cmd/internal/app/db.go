package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBConfig holds the Postgres pool settings for the postgres store.
type DBConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// MaxConnLifetime recycles connections; zero keeps the pgx default.
	MaxConnLifetime time.Duration
	// ConnectTimeout bounds the startup ping.
	ConnectTimeout time.Duration
}

// poolConfig turns c into a pgxpool config without connecting.
func poolConfig(c DBConfig) (*pgxpool.Config, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("db: empty database url")
	}
	pcfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("db: parse url: %w", err)
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		if c.MinConns > pcfg.MaxConns {
			return nil, fmt.Errorf("db: min conns %d exceeds max conns %d", c.MinConns, pcfg.MaxConns)
		}
		pcfg.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = c.MaxConnLifetime
	}
	return pcfg, nil
}

// NewDBPool opens the event and token database and waits for one connection.
// The schema is migrated by the caller (storage.MigratePostgres).
func NewDBPool(ctx context.Context, c DBConfig, log Logger) (*pgxpool.Pool, error) {
	pcfg, err := poolConfig(c)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}

	if err := PingDB(ctx, pool, nonZeroDuration(c.ConnectTimeout, 3*time.Second)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	log.Info("db.pool.ready",
		"max_conns", pcfg.MaxConns,
		"min_conns", pcfg.MinConns,
		"host", pcfg.ConnConfig.Host,
		"database", pcfg.ConnConfig.Database,
	)
	return pool, nil
}

// PingDB acquires and releases one connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Ping(ctx)
}
