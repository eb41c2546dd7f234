package db

import "time"

// Queue statuses. A job is terminal at completed, or at failed once
// retry_count+1 has reached max_retries (its last allowed attempt failed).
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// File types recognized by the queue.
const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
)

// EncryptionKey is a row of encryption_keys. Key and IV are hex-encoded
// 16-byte values. Rows are never mutated after creation.
type EncryptionKey struct {
	ID       int64
	KeyValue string
	IVValue  string
	IsActive bool
}

// QueueJob is the slice of a processing_queue row the worker needs.
type QueueJob struct {
	ID         int64
	FilePath   string
	FileType   string
	RetryCount int32
	MaxRetries int32
}

// MediaFile is the slice of a media_files row the dedup gate reads.
type MediaFile struct {
	ID           string
	OriginalName string
	FileType     string
	StoragePath  string
}

// MediaMetadata carries everything SaveMediaMetadata persists for a
// successfully processed asset.
type MediaMetadata struct {
	ID              string
	OriginalName    string
	FileHash        string
	FileType        string
	MimeType        string
	FileSizeBytes   int64
	Width           *int32
	Height          *int32
	DurationSeconds *float64
	StoragePath     string
	ThumbnailPath   *string
	PreviewPath     *string
	EncryptionKeyID int64
	ExtraMetadata   map[string]any
}

// StaleProcessingAge is the default threshold beyond which a processing
// row is assumed orphaned by a crash.
const StaleProcessingAge = 30 * time.Minute
