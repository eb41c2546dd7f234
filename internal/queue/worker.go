// Package queue drives persistent jobs through the
// queued → processing → completed|failed state machine with bounded,
// cooled-down retries.
package queue

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediavault/internal/db"
)

const (
	pendingBatchSize = 5
	retryBatchSize   = 3
	pollInterval     = 5 * time.Second

	maxConsecutiveErrors = 5
	dbErrorFloor         = 60 * time.Second
	errorBackoffUnit     = 10 * time.Second
	maxBackoffSteps      = 6
)

// Store is the slice of the catalog store the worker drives the queue
// with.
type Store interface {
	GetPendingJobs(ctx context.Context, limit int) ([]db.QueueJob, error)
	GetFailedJobsForRetry(ctx context.Context, limit int) ([]db.QueueJob, error)
	MarkProcessing(ctx context.Context, jobID int64) error
	UpdateQueueStatus(ctx context.Context, filePath, status, note string) error
	IncrementRetryCount(ctx context.Context, jobID int64) error
}

// Processor transforms a single job. A non-empty note with a nil error
// completes the job without a new asset (duplicate content).
type Processor interface {
	Process(ctx context.Context, job db.QueueJob) (string, error)
}

// Worker polls the queue and dispatches jobs to the processor.
type Worker struct {
	store       Store
	processor   Processor
	concurrency int
	logger      *zap.Logger

	// sleep is stubbed in tests.
	sleep func(ctx context.Context, d time.Duration)
}

func NewWorker(store Store, processor Processor, concurrency int, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		store:       store,
		processor:   processor,
		concurrency: concurrency,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Run polls until the context is cancelled. Database-layer errors break
// the current round and back off without touching any job's status; the
// affected jobs stay queued or processing and are recovered by a later
// round.
func (w *Worker) Run(ctx context.Context) {
	consecutiveErrors := 0

	for ctx.Err() == nil {
		err := w.runRound(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			consecutiveErrors++
			w.logger.Error("queue worker round failed",
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.Error(err))
			if db.IsConnError(err) && consecutiveErrors >= maxConsecutiveErrors {
				w.sleep(ctx, dbErrorFloor)
				consecutiveErrors = 0
			} else {
				steps := consecutiveErrors
				if steps > maxBackoffSteps {
					steps = maxBackoffSteps
				}
				w.sleep(ctx, errorBackoffUnit*time.Duration(steps))
			}
			continue
		}

		consecutiveErrors = 0
		w.sleep(ctx, pollInterval)
	}
}

// runRound fetches one batch of dispatchable jobs and processes them.
// The returned error is a database-layer failure that aborted the round.
func (w *Worker) runRound(ctx context.Context) error {
	pending, err := w.store.GetPendingJobs(ctx, pendingBatchSize)
	if err != nil {
		return err
	}
	failed, err := w.store.GetFailedJobsForRetry(ctx, retryBatchSize)
	if err != nil {
		return err
	}

	jobs := append(pending, failed...)
	if len(jobs) == 0 {
		return nil
	}
	w.logger.Info("found jobs to process", zap.Int("count", len(jobs)))

	if w.concurrency == 1 {
		for _, job := range jobs {
			if err := w.runJob(ctx, job); err != nil {
				return err
			}
		}
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return w.runJob(ctx, job)
		})
	}
	return g.Wait()
}

// runJob drives one job through the state machine. The returned error
// is a database-layer failure; processing failures are recorded on the
// job instead.
func (w *Worker) runJob(ctx context.Context, job db.QueueJob) error {
	if _, err := os.Stat(job.FilePath); err != nil {
		w.logger.Warn("file not found, marking job failed",
			zap.String("path", job.FilePath))
		return w.store.UpdateQueueStatus(ctx, job.FilePath, db.StatusFailed, "File not found")
	}

	if err := w.store.MarkProcessing(ctx, job.ID); err != nil {
		return err
	}
	if job.RetryCount > 0 {
		w.logger.Info("retrying job",
			zap.String("path", job.FilePath),
			zap.Int32("attempt", job.RetryCount+1))
	}

	note, err := w.processor.Process(ctx, job)
	if err != nil {
		if db.IsConnError(err) {
			// Not the job's fault; leave it in processing for a later
			// round and abort this one.
			return err
		}

		w.logger.Error("job processing failed",
			zap.String("path", job.FilePath),
			zap.Error(err))
		if statusErr := w.store.UpdateQueueStatus(ctx, job.FilePath, db.StatusFailed, err.Error()); statusErr != nil {
			return statusErr
		}
		if job.RetryCount+1 < job.MaxRetries {
			if retryErr := w.store.IncrementRetryCount(ctx, job.ID); retryErr != nil {
				w.logger.Error("failed to schedule retry",
					zap.Int64("job_id", job.ID),
					zap.Error(retryErr))
			} else {
				w.logger.Info("job will be retried later",
					zap.String("path", job.FilePath))
			}
		}
		return nil
	}

	return w.store.UpdateQueueStatus(ctx, job.FilePath, db.StatusCompleted, note)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
