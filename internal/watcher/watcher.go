// Package watcher feeds the intake directory into the processing
// queue: a best-effort filesystem event watcher paired with the
// periodic reconciler that is the actual correctness mechanism.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mediavault/internal/utils/file"
)

// Enqueuer is the idempotent queue-insert capability.
type Enqueuer interface {
	AddToQueue(ctx context.Context, filePath, fileType string) error
}

// Watcher subscribes to filesystem creation events under the intake
// root and enqueues eligible files as they appear.
type Watcher struct {
	root   string
	store  Enqueuer
	logger *zap.Logger
}

func New(root string, store Enqueuer, logger *zap.Logger) *Watcher {
	return &Watcher{root: root, store: store, logger: logger}
}

// Run watches until the context is cancelled. Enqueue errors are logged
// and dropped; the reconciler picks up anything missed.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := w.addRecursive(fsWatcher, w.root); err != nil {
		return err
	}
	w.logger.Info("watching intake directory", zap.String("dir", w.root))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.handleCreate(ctx, fsWatcher, event.Name)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("intake watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleCreate(ctx context.Context, fsWatcher *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	// New directories join the watch so nested drops are seen too.
	if info.IsDir() {
		if err := fsWatcher.Add(path); err != nil {
			w.logger.Error("failed to watch new directory",
				zap.String("dir", path),
				zap.Error(err))
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	kind := file.Classify(path)
	if kind == file.KindUnknown {
		return
	}

	if err := w.store.AddToQueue(ctx, path, string(kind)); err != nil {
		// The reconciler will retry this file on its next pass.
		w.logger.Error("error adding file to queue in watcher",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	w.logger.Info("added new file to processing queue", zap.String("path", path))
}

func (w *Watcher) addRecursive(fsWatcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsWatcher.Add(path)
		}
		return nil
	})
}
