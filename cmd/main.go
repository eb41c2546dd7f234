package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"mediavault/config"
	"mediavault/internal/db"
	"mediavault/internal/keystore"
	applog "mediavault/internal/log"
	"mediavault/internal/monitor"
	"mediavault/internal/processors"
	"mediavault/internal/queue"
	"mediavault/internal/utils/ffmpeg"
	"mediavault/internal/watcher"
)

func init() {
	log.SetOutput(os.Stdout)
	config.LoadEnvironment()
}

func main() {
	cfg := config.Load()

	logger, err := applog.New(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Storage.EnsureDirs(); err != nil {
		logger.Fatal("failed to create storage directories", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.DB, logger)
	if err != nil {
		logger.Fatal("failed to connect to catalog", zap.Error(err))
	}
	defer database.Close()

	// The active key must exist, and the raw key file must be on disk,
	// before any video job can start an encoder.
	keys := keystore.New(database, cfg.Storage.Private, logger)
	logger.Info("initializing encryption key")
	activeKey, err := keys.Active(ctx)
	if err != nil {
		logger.Fatal("failed to initialize encryption key", zap.Error(err))
	}
	logger.Info("encryption key initialized", zap.Int64("key_id", activeKey.ID))

	runner := ffmpeg.NewRunner(logger)
	processor := processors.NewMediaProcessor(
		database, keys, runner,
		cfg.Storage, cfg.Media, cfg.Server.PublicBaseURL,
		logger,
	)

	reconciler := watcher.NewReconciler(cfg.Storage.Imports, database, logger)
	intakeWatcher := watcher.New(cfg.Storage.Imports, database, logger)
	worker := queue.NewWorker(database, processor, cfg.Server.WorkerConcurrency, logger)
	health := monitor.New(database, logger)

	// Recover jobs stranded in processing by a previous crash, then
	// reconcile the intake directory once before dispatch begins.
	if requeued, err := database.RequeueStaleProcessing(ctx, db.StaleProcessingAge); err != nil {
		logger.Error("failed to requeue stale processing jobs", zap.Error(err))
	} else if requeued > 0 {
		logger.Info("requeued stale processing jobs", zap.Int64("count", requeued))
	}
	if found, err := reconciler.ScanOnce(ctx); err != nil {
		logger.Error("startup intake scan failed", zap.Error(err))
	} else {
		logger.Info("startup intake scan finished", zap.Int("files_enqueued", found))
	}

	var wg sync.WaitGroup
	runTask := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("task started", zap.String("task", name))
			fn(ctx)
			logger.Info("task stopped", zap.String("task", name))
		}()
	}

	runTask("intake-watcher", func(ctx context.Context) {
		if err := intakeWatcher.Run(ctx); err != nil {
			logger.Error("intake watcher exited", zap.Error(err))
		}
	})
	runTask("reconciler", reconciler.Run)
	runTask("queue-worker", worker.Run)
	runTask("health-monitor", health.Run)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down gracefully", zap.String("signal", sig.String()))

	cancel()
	wg.Wait()
}
