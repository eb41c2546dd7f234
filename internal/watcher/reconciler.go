package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediavault/internal/utils/file"
)

const (
	scanInterval     = 60 * time.Second
	tickInterval     = 10 * time.Second
	errorBackoffUnit = 30 * time.Second
	errorFloor       = 120 * time.Second
	maxErrorStreak   = 5
)

// ReconcilerStore is the catalog slice the reconciler enqueues through.
type ReconcilerStore interface {
	Enqueuer
	HasQueueJob(ctx context.Context, filePath string) (bool, error)
}

// Reconciler periodically scans the intake root and enqueues eligible
// files the event watcher missed. It is the correctness mechanism;
// event delivery is best-effort.
type Reconciler struct {
	root   string
	store  ReconcilerStore
	logger *zap.Logger
}

func NewReconciler(root string, store ReconcilerStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{root: root, store: store, logger: logger}
}

// Run scans every scanInterval (checked at tickInterval granularity)
// until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	lastScan := time.Now()
	consecutiveErrors := 0

	for ctx.Err() == nil {
		if time.Since(lastScan) >= scanInterval {
			found, err := r.ScanOnce(ctx)
			if err != nil {
				consecutiveErrors++
				r.logger.Error("periodic scan failed",
					zap.Int("consecutive_errors", consecutiveErrors),
					zap.Error(err))
				if consecutiveErrors >= maxErrorStreak {
					sleepFor(ctx, errorFloor)
					consecutiveErrors = 0
				} else {
					sleepFor(ctx, errorBackoffUnit*time.Duration(consecutiveErrors))
				}
				continue
			}

			if found > 0 {
				r.logger.Info("periodic scan found new files", zap.Int("count", found))
			}
			lastScan = time.Now()
			consecutiveErrors = 0
		}

		sleepFor(ctx, tickInterval)
	}
}

// ScanOnce walks the intake root and enqueues every eligible file that
// has no queue row yet. It returns the number of files enqueued. Run
// once synchronously at startup before workers begin dispatching.
func (r *Reconciler) ScanOnce(ctx context.Context) (int, error) {
	found := 0
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		kind := file.Classify(path)
		if kind == file.KindUnknown {
			return nil
		}

		exists, err := r.store.HasQueueJob(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if err := r.store.AddToQueue(ctx, path, string(kind)); err != nil {
			return err
		}
		r.logger.Info("found new file during scan", zap.String("path", path))
		found++
		return nil
	})
	return found, err
}

func sleepFor(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
