package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mediavault/internal/db"
)

type statusUpdate struct {
	FilePath string
	Status   string
	Note     string
}

type fakeStore struct {
	pending []db.QueueJob
	failed  []db.QueueJob

	pendingErr error

	marked     []int64
	updates    []statusUpdate
	increments []int64
}

func (s *fakeStore) GetPendingJobs(ctx context.Context, limit int) ([]db.QueueJob, error) {
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) GetFailedJobsForRetry(ctx context.Context, limit int) ([]db.QueueJob, error) {
	if len(s.failed) > limit {
		return s.failed[:limit], nil
	}
	return s.failed, nil
}

func (s *fakeStore) MarkProcessing(ctx context.Context, jobID int64) error {
	s.marked = append(s.marked, jobID)
	return nil
}

func (s *fakeStore) UpdateQueueStatus(ctx context.Context, filePath, status, note string) error {
	s.updates = append(s.updates, statusUpdate{filePath, status, note})
	return nil
}

func (s *fakeStore) IncrementRetryCount(ctx context.Context, jobID int64) error {
	s.increments = append(s.increments, jobID)
	return nil
}

type fakeProcessor struct {
	process func(ctx context.Context, job db.QueueJob) (string, error)
	calls   []int64
}

func (p *fakeProcessor) Process(ctx context.Context, job db.QueueJob) (string, error) {
	p.calls = append(p.calls, job.ID)
	if p.process != nil {
		return p.process(ctx, job)
	}
	return "", nil
}

func existingJob(t *testing.T, id int64, retryCount, maxRetries int32) db.QueueJob {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.jpg")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	return db.QueueJob{ID: id, FilePath: path, FileType: db.FileTypeImage, RetryCount: retryCount, MaxRetries: maxRetries}
}

func newTestWorker(store *fakeStore, proc *fakeProcessor) *Worker {
	return NewWorker(store, proc, 1, zap.NewNop())
}

func TestRunRound(t *testing.T) {
	ctx := context.Background()

	t.Run("SuccessMarksCompleted", func(t *testing.T) {
		job := existingJob(t, 1, 0, 3)
		store := &fakeStore{pending: []db.QueueJob{job}}
		proc := &fakeProcessor{}

		require.NoError(t, newTestWorker(store, proc).runRound(ctx))

		assert.Equal(t, []int64{1}, store.marked)
		assert.Equal(t, []int64{1}, proc.calls)
		require.Len(t, store.updates, 1)
		assert.Equal(t, statusUpdate{job.FilePath, db.StatusCompleted, ""}, store.updates[0])
		assert.Empty(t, store.increments)
	})

	t.Run("DuplicateNotePropagates", func(t *testing.T) {
		job := existingJob(t, 2, 0, 3)
		store := &fakeStore{pending: []db.QueueJob{job}}
		proc := &fakeProcessor{process: func(ctx context.Context, job db.QueueJob) (string, error) {
			return "Duplicate of existing file ID: abc123", nil
		}}

		require.NoError(t, newTestWorker(store, proc).runRound(ctx))

		require.Len(t, store.updates, 1)
		assert.Equal(t, db.StatusCompleted, store.updates[0].Status)
		assert.Contains(t, store.updates[0].Note, "abc123")
	})

	t.Run("MissingFileFailsWithoutProcessing", func(t *testing.T) {
		job := db.QueueJob{ID: 3, FilePath: filepath.Join(t.TempDir(), "gone.jpg"), MaxRetries: 3}
		store := &fakeStore{pending: []db.QueueJob{job}}
		proc := &fakeProcessor{}

		require.NoError(t, newTestWorker(store, proc).runRound(ctx))

		assert.Empty(t, store.marked)
		assert.Empty(t, proc.calls)
		require.Len(t, store.updates, 1)
		assert.Equal(t, statusUpdate{job.FilePath, db.StatusFailed, "File not found"}, store.updates[0])
	})

	t.Run("ProcessingErrorSchedulesRetry", func(t *testing.T) {
		job := existingJob(t, 4, 0, 3)
		store := &fakeStore{pending: []db.QueueJob{job}}
		proc := &fakeProcessor{process: func(ctx context.Context, job db.QueueJob) (string, error) {
			return "", errors.New("ffmpeg failed: exit status 1")
		}}

		require.NoError(t, newTestWorker(store, proc).runRound(ctx))

		require.Len(t, store.updates, 1)
		assert.Equal(t, db.StatusFailed, store.updates[0].Status)
		assert.Contains(t, store.updates[0].Note, "ffmpeg failed")
		assert.Equal(t, []int64{4}, store.increments)
	})

	t.Run("ExhaustedRetriesStayFailed", func(t *testing.T) {
		job := existingJob(t, 5, 2, 3)
		store := &fakeStore{failed: []db.QueueJob{job}}
		proc := &fakeProcessor{process: func(ctx context.Context, job db.QueueJob) (string, error) {
			return "", errors.New("still broken")
		}}

		require.NoError(t, newTestWorker(store, proc).runRound(ctx))

		require.Len(t, store.updates, 1)
		assert.Equal(t, db.StatusFailed, store.updates[0].Status)
		assert.Empty(t, store.increments, "no retry once retry_count+1 reaches max_retries")
	})

	t.Run("ConnErrorBreaksRoundWithoutFailingJob", func(t *testing.T) {
		first := existingJob(t, 6, 0, 3)
		second := existingJob(t, 7, 0, 3)
		store := &fakeStore{pending: []db.QueueJob{first, second}}
		connErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}
		proc := &fakeProcessor{process: func(ctx context.Context, job db.QueueJob) (string, error) {
			return "", connErr
		}}

		err := newTestWorker(store, proc).runRound(ctx)
		require.Error(t, err)
		assert.True(t, db.IsConnError(err))

		// The first job was marked processing but never failed, and the
		// round stopped before the second job was touched.
		assert.Equal(t, []int64{6}, store.marked)
		assert.Empty(t, store.updates)
		assert.Empty(t, store.increments)
	})

	t.Run("FetchErrorAbortsRound", func(t *testing.T) {
		store := &fakeStore{pendingErr: errors.New("connection refused")}
		err := newTestWorker(store, &fakeProcessor{}).runRound(ctx)
		require.Error(t, err)
		assert.True(t, db.IsConnError(err))
	})

	t.Run("CombinesPendingAndRetryBatches", func(t *testing.T) {
		store := &fakeStore{
			pending: []db.QueueJob{existingJob(t, 8, 0, 3)},
			failed:  []db.QueueJob{existingJob(t, 9, 1, 3)},
		}
		proc := &fakeProcessor{}

		require.NoError(t, newTestWorker(store, proc).runRound(ctx))
		assert.Equal(t, []int64{8, 9}, proc.calls)
	})
}

func TestIsConnErrorClassification(t *testing.T) {
	assert.True(t, db.IsConnError(&pgconn.PgError{Code: "08006"}))
	assert.True(t, db.IsConnError(&pgconn.PgError{Code: "40P01"}), "deadlock")
	assert.True(t, db.IsConnError(&pgconn.PgError{Code: "57P01"}), "admin shutdown")
	assert.False(t, db.IsConnError(&pgconn.PgError{Code: "23505"}), "unique violation is not a connection failure")
	assert.False(t, db.IsConnError(errors.New("ffmpeg failed: exit status 1")))
	assert.False(t, db.IsConnError(nil))
}
