package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetActiveKey returns the active encryption key, or nil when none
// exists yet.
func (d *DB) GetActiveKey(ctx context.Context) (*EncryptionKey, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var key EncryptionKey
	err = conn.QueryRow(ctx, `
		SELECT id, key_value, iv_value, is_active
		FROM encryption_keys
		WHERE is_active = true
		LIMIT 1
	`).Scan(&key.ID, &key.KeyValue, &key.IVValue, &key.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active key: %w", err)
	}
	return &key, nil
}

// CreateActiveKey inserts a new active key and re-reads it to confirm
// durability.
func (d *DB) CreateActiveKey(ctx context.Context, keyHex, ivHex string) (*EncryptionKey, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var key EncryptionKey
	err = conn.QueryRow(ctx, `
		INSERT INTO encryption_keys (key_value, iv_value, is_active)
		VALUES ($1, $2, true)
		RETURNING id, key_value, iv_value, is_active
	`, keyHex, ivHex).Scan(&key.ID, &key.KeyValue, &key.IVValue, &key.IsActive)
	if err != nil {
		return nil, fmt.Errorf("insert encryption key: %w", err)
	}

	var verified EncryptionKey
	err = conn.QueryRow(ctx, `
		SELECT id, key_value, iv_value, is_active
		FROM encryption_keys
		WHERE is_active = true
		LIMIT 1
	`).Scan(&verified.ID, &verified.KeyValue, &verified.IVValue, &verified.IsActive)
	if err != nil {
		return nil, fmt.Errorf("verify encryption key after insert: %w", err)
	}
	return &key, nil
}

// KeyExists reports whether an encryption key row with the given id
// exists.
func (d *DB) KeyExists(ctx context.Context, id int64) (bool, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	var found int64
	err = conn.QueryRow(ctx, `SELECT id FROM encryption_keys WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check encryption key: %w", err)
	}
	return true, nil
}

// AddToQueue enqueues a file for processing. Inserting a file_path that
// is already queued is a no-op; the unique constraint is the
// serialization point between the watcher and the reconciler.
func (d *DB) AddToQueue(ctx context.Context, filePath, fileType string) error {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		INSERT INTO processing_queue (file_path, file_type, status)
		VALUES ($1, $2, 'queued')
		ON CONFLICT (file_path) DO NOTHING
	`, filePath, fileType)
	if err != nil {
		return fmt.Errorf("add to queue: %w", err)
	}
	return nil
}

// HasQueueJob reports whether a queue row exists for the file path.
func (d *DB) HasQueueJob(ctx context.Context, filePath string) (bool, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `SELECT id FROM processing_queue WHERE file_path = $1`, filePath).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check queue for %s: %w", filePath, err)
	}
	return true, nil
}

// UpdateQueueStatus moves the job for filePath to the given status.
// started_at is stamped when entering processing and completed_at when
// entering a terminal status; note lands in error_message (it doubles as
// the duplicate annotation on completed jobs).
func (d *DB) UpdateQueueStatus(ctx context.Context, filePath, status, note string) error {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		UPDATE processing_queue
		SET status = $1,
		    error_message = NULLIF($2, ''),
		    started_at = CASE WHEN $1 = 'processing' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE file_path = $3
	`, status, note, filePath)
	if err != nil {
		return fmt.Errorf("update queue status: %w", err)
	}
	return nil
}

// GetPendingJobs fetches queued jobs that still have retry budget,
// highest priority first, oldest first within a priority.
func (d *DB) GetPendingJobs(ctx context.Context, limit int) ([]QueueJob, error) {
	return d.fetchJobs(ctx, `
		SELECT id, file_path, file_type, retry_count, max_retries
		FROM processing_queue
		WHERE status = 'queued'
		AND retry_count < max_retries
		ORDER BY priority DESC, queued_at ASC
		LIMIT $1
	`, limit)
}

// GetFailedJobsForRetry fetches failed jobs whose cool-down has elapsed
// and which still have retry budget. A job whose retry_count+1 has
// reached max_retries is not requeued by the worker, so it is not
// selected here either and stays failed.
func (d *DB) GetFailedJobsForRetry(ctx context.Context, limit int) ([]QueueJob, error) {
	return d.fetchJobs(ctx, `
		SELECT id, file_path, file_type, retry_count, max_retries
		FROM processing_queue
		WHERE status = 'failed'
		AND retry_count + 1 < max_retries
		AND (completed_at IS NULL OR completed_at < NOW() - INTERVAL '5 minutes')
		ORDER BY priority DESC, queued_at ASC
		LIMIT $1
	`, limit)
}

func (d *DB) fetchJobs(ctx context.Context, query string, limit int) ([]QueueJob, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []QueueJob
	for rows.Next() {
		var job QueueJob
		if err := rows.Scan(&job.ID, &job.FilePath, &job.FileType, &job.RetryCount, &job.MaxRetries); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// IncrementRetryCount sends a failed job back to queued with its retry
// bookkeeping reset.
func (d *DB) IncrementRetryCount(ctx context.Context, jobID int64) error {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		UPDATE processing_queue
		SET retry_count = retry_count + 1,
		    status = 'queued',
		    error_message = NULL,
		    started_at = NULL,
		    completed_at = NULL
		WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("increment retry count: %w", err)
	}
	return nil
}

// MarkProcessing transitions a job to processing and stamps started_at.
func (d *DB) MarkProcessing(ctx context.Context, jobID int64) error {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		UPDATE processing_queue
		SET status = 'processing',
		    started_at = NOW()
		WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// RequeueStaleProcessing returns processing rows older than the given
// age back to queued. Run once during the startup reconcile pass to
// recover jobs stranded by a crash.
func (d *DB) RequeueStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE processing_queue
		SET status = 'queued',
		    started_at = NULL
		WHERE status = 'processing'
		AND started_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("requeue stale processing rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CheckDuplicateByHash looks up a previously ingested asset with the
// same content digest, or nil when the content is new.
func (d *DB) CheckDuplicateByHash(ctx context.Context, fileHash string) (*MediaFile, error) {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var m MediaFile
	err = conn.QueryRow(ctx, `
		SELECT id, original_name, file_type, storage_path
		FROM media_files
		WHERE file_hash = $1
		LIMIT 1
	`, fileHash).Scan(&m.ID, &m.OriginalName, &m.FileType, &m.StoragePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check duplicate by hash: %w", err)
	}
	return &m, nil
}

// SaveMediaMetadata inserts the media_files row for a completed asset.
// This is the last step of processing; its success is what makes the
// asset durable.
func (d *DB) SaveMediaMetadata(ctx context.Context, m MediaMetadata) error {
	conn, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	extra := m.ExtraMetadata
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("marshal extra metadata: %w", err)
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO media_files (
			id, original_name, file_hash, file_type, mime_type, file_size_bytes,
			width, height, duration_seconds, storage_path,
			thumbnail_path, preview_path, encryption_key_id,
			processing_status, processing_completed_at, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'completed', NOW(), $14
		)
	`, m.ID, m.OriginalName, m.FileHash, m.FileType, m.MimeType, m.FileSizeBytes,
		m.Width, m.Height, m.DurationSeconds, m.StoragePath,
		m.ThumbnailPath, m.PreviewPath, m.EncryptionKeyID, extraJSON)
	if err != nil {
		return fmt.Errorf("save media metadata: %w", err)
	}
	return nil
}
