package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
	"github.com/ekaya-inc/ekaya-gateway/pkg/retry"
)

// DB wraps the pool for the queried database.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string

	// DeadlineDelay is how long a cancelled query may keep the connection
	// after the cancel request was sent before the socket deadline fires.
	DeadlineDelay time.Duration
}

// ConfigFrom builds a Config from the loaded settings.
func ConfigFrom(c *config.DatabaseConfig) *Config {
	return &Config{
		URL:             c.ConnectionURL(),
		MaxConnections:  c.MaxConnections,
		MinConnections:  c.MinConnections,
		ApplicationName: c.ApplicationName,
	}
}

// NewConnection creates a pool whose sessions default to read-only
// transactions. Query cancellation through a context sends a cancel
// request to the server before the socket deadline is forced.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = cfg.MinConnections

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	rt := poolConfig.ConnConfig.RuntimeParams
	rt["default_transaction_read_only"] = "on"
	if cfg.ApplicationName != "" {
		rt["application_name"] = cfg.ApplicationName
	}

	deadlineDelay := cfg.DeadlineDelay
	if deadlineDelay == 0 {
		deadlineDelay = 2 * time.Second
	}
	poolConfig.ConnConfig.BuildContextWatcherHandler = func(conn *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.CancelRequestContextWatcherHandler{
			Conn:          conn,
			DeadlineDelay: deadlineDelay,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Connect is NewConnection retried with backoff while the failure looks
// transient, for a database that is still starting up.
func Connect(ctx context.Context, cfg *Config, retryCfg *retry.Config, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var db *DB
	err := retry.DoIfRetryable(ctx, retryCfg, func() error {
		var err error
		db, err = NewConnection(ctx, cfg)
		if err != nil {
			logger.Warn("Database connection attempt failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
