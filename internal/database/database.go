// Package database provides the Postgres key-value backend for the
// recording library.
package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pool limits. The library does one read-modify-write per mutation, so a
// small pool is plenty.
const (
	maxConns = 8
	minConns = 1
)

// DB is a connection pool over a schema holding a single kv_store table.
// It satisfies recordings.KV.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.ConnConfig.RuntimeParams["application_name"] = "voicecoach"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", maskDSN(databaseURL), err)
	}

	log = log.With().Str("component", "database").Logger()
	log.Info().Str("url", maskDSN(databaseURL)).Int32("max_conns", cfg.MaxConns).Msg("database connected")

	return &DB{Pool: pool, log: log}, nil
}

// HealthCheck pings the database with a short timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// Close releases every pooled connection.
func (db *DB) Close() {
	db.log.Info().Msg("closing database pool")
	db.Pool.Close()
}

// maskDSN hides the password in a connection URL for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
