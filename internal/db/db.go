// Package db owns the catalog connection pool and the queries the
// pipeline runs against the externally-owned catalog tables.
package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mediavault/config"
)

const (
	minConns        = 1
	maxConns        = 10
	acquireAttempts = 3
	acquireBackoff  = 2 * time.Second
)

// DB wraps the pgx connection pool with liveness probing and
// full-teardown reconnection.
type DB struct {
	cfg    config.DatabaseConfig
	logger *zap.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New connects to the catalog and verifies the connection.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	d := &DB{cfg: cfg, logger: logger}
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	logger.Info("connected to catalog with connection pool",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))
	return d, nil
}

func (d *DB) connect(ctx context.Context) error {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.cfg.User,
		d.cfg.Password,
		d.cfg.Host,
		d.cfg.Port,
		d.cfg.DBName,
		d.cfg.SSL,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse pool config: %w", err)
	}
	poolCfg.MinConns = minConns
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping catalog: %w", err)
	}

	d.mu.Lock()
	if d.pool != nil {
		d.pool.Close()
	}
	d.pool = pool
	d.mu.Unlock()
	return nil
}

func (d *DB) currentPool() *pgxpool.Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool
}

func (d *DB) teardown() {
	d.mu.Lock()
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	d.mu.Unlock()
}

// Acquire borrows a connection, probing it with SELECT 1 first. On
// probe or acquire failure the whole pool is torn down and rebuilt, with
// linearly growing delays between attempts.
func (d *DB) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= acquireAttempts; attempt++ {
		pool := d.currentPool()
		if pool == nil {
			if err := d.connect(ctx); err != nil {
				lastErr = err
				d.waitBeforeRetry(ctx, attempt)
				continue
			}
			pool = d.currentPool()
		}

		conn, err := pool.Acquire(ctx)
		if err == nil {
			var one int
			if probeErr := conn.QueryRow(ctx, "SELECT 1").Scan(&one); probeErr == nil {
				return conn, nil
			} else {
				err = probeErr
				conn.Release()
			}
		}

		lastErr = err
		d.logger.Warn("catalog connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		d.teardown()
		d.waitBeforeRetry(ctx, attempt)
	}
	return nil, fmt.Errorf("acquire catalog connection after %d attempts: %w", acquireAttempts, lastErr)
}

func (d *DB) waitBeforeRetry(ctx context.Context, attempt int) {
	if attempt >= acquireAttempts {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(acquireBackoff * time.Duration(attempt)):
	}
}

// Healthy reports whether the catalog answers a version query.
func (d *DB) Healthy(ctx context.Context) bool {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return false
	}
	defer conn.Release()

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		d.logger.Warn("catalog health check failed", zap.Error(err))
		return false
	}
	return true
}

// Stat exposes pool statistics for the health monitor, or nil when the
// pool is torn down.
func (d *DB) Stat() *pgxpool.Stat {
	pool := d.currentPool()
	if pool == nil {
		return nil
	}
	return pool.Stat()
}

// Close shuts the pool down.
func (d *DB) Close() {
	d.teardown()
	d.logger.Info("catalog connection pool closed")
}

// IsConnError reports whether err is a connection-level failure (network
// error, connection exception, deadlock, or admin shutdown) that should
// break the current worker round instead of failing the job.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception, class 40: transaction rollback
		// (deadlock/serialization), class 57: operator intervention.
		for _, class := range []string{"08", "40", "57"} {
			if strings.HasPrefix(pgErr.Code, class) {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.Timeout(err) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "closed pool") ||
		strings.Contains(err.Error(), "conn closed") ||
		strings.Contains(err.Error(), "acquire catalog connection")
}
