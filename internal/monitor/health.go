// Package monitor keeps an eye on the catalog connection.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mediavault/internal/db"
)

const (
	checkInterval = 5 * time.Minute
	errorPause    = time.Minute
)

// HealthMonitor periodically verifies the catalog answers queries and
// logs pool statistics.
type HealthMonitor struct {
	db     *db.DB
	logger *zap.Logger
}

func New(database *db.DB, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{db: database, logger: logger}
}

// Run checks every five minutes until the context is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(checkInterval):
		}

		healthy := m.db.Healthy(ctx)
		fields := []zap.Field{zap.Bool("healthy", healthy)}
		if stat := m.db.Stat(); stat != nil {
			fields = append(fields,
				zap.Int32("total_conns", stat.TotalConns()),
				zap.Int32("idle_conns", stat.IdleConns()),
				zap.Int32("max_conns", stat.MaxConns()))
		}

		if healthy {
			m.logger.Info("catalog health check passed", fields...)
		} else {
			m.logger.Error("catalog health check failed", fields...)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorPause):
			}
		}
	}
}
