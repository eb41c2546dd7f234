// Package processors turns intake files into encrypted web assets: the
// per-job pipeline of dedup gate, image/video transformation, artifact
// encryption, and catalog persistence.
package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediavault/config"
	"mediavault/internal/db"
	"mediavault/internal/utils/ffmpeg"
	"mediavault/internal/utils/file"
	"mediavault/internal/utils/hash"
)

// Catalog is the slice of the catalog store the processor writes to.
type Catalog interface {
	CheckDuplicateByHash(ctx context.Context, fileHash string) (*db.MediaFile, error)
	KeyExists(ctx context.Context, id int64) (bool, error)
	SaveMediaMetadata(ctx context.Context, m db.MediaMetadata) error
}

// Keys is the active-key capability the processor encrypts with.
type Keys interface {
	Active(ctx context.Context) (*db.EncryptionKey, error)
	KeyFilePath() string
}

// MediaProcessor drives a single job through the transformation
// pipeline.
type MediaProcessor struct {
	catalog Catalog
	keys    Keys
	runner  *ffmpeg.Runner
	storage config.StorageConfig
	media   config.MediaConfig
	baseURL string
	logger  *zap.Logger
}

func NewMediaProcessor(
	catalog Catalog,
	keys Keys,
	runner *ffmpeg.Runner,
	storage config.StorageConfig,
	media config.MediaConfig,
	baseURL string,
	logger *zap.Logger,
) *MediaProcessor {
	return &MediaProcessor{
		catalog: catalog,
		keys:    keys,
		runner:  runner,
		storage: storage,
		media:   media,
		baseURL: baseURL,
		logger:  logger,
	}
}

// transformResult is what an image or video transformation hands back
// for the catalog row.
type transformResult struct {
	Width           int32
	Height          int32
	DurationSeconds *float64
	StoragePath     string
	ThumbnailPath   string
	PreviewPath     *string
	ExtraMetadata   map[string]any
}

// Process runs the full pipeline for one queue job. A non-empty note
// with a nil error means the job completed without producing a new
// asset (duplicate content). The intake file is removed only after the
// catalog row is durable.
func (p *MediaProcessor) Process(ctx context.Context, job db.QueueJob) (string, error) {
	inputPath := job.FilePath
	p.logger.Info("processing file", zap.String("path", inputPath))

	fileHash, err := hash.SumSHA256(inputPath)
	if err != nil {
		return "", fmt.Errorf("calculate hash: %w", err)
	}

	duplicate, err := p.catalog.CheckDuplicateByHash(ctx, fileHash)
	if err != nil {
		return "", err
	}
	if duplicate != nil {
		p.logger.Warn("duplicate file detected",
			zap.String("path", inputPath),
			zap.String("existing_id", duplicate.ID),
			zap.String("existing_name", duplicate.OriginalName))
		if err := os.Remove(inputPath); err != nil {
			return "", fmt.Errorf("remove duplicate file: %w", err)
		}
		return fmt.Sprintf("Duplicate of existing file ID: %s", duplicate.ID), nil
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("stat input file: %w", err)
	}

	assetID := hash.NewAssetID(inputPath)
	mimeType := file.MimeType(inputPath)

	// Refresh the key per job so the raw key file is guaranteed current
	// before any encoder starts.
	key, err := p.keys.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("get encryption key: %w", err)
	}

	var result *transformResult
	switch file.Classify(inputPath) {
	case file.KindImage:
		result, err = p.processImage(ctx, inputPath, assetID, key)
	case file.KindVideo:
		result, err = p.processVideo(ctx, inputPath, assetID, key)
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(inputPath))
	}
	if err != nil {
		return "", err
	}

	exists, err := p.catalog.KeyExists(ctx, key.ID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("encryption key %d not found in catalog", key.ID)
	}

	meta := db.MediaMetadata{
		ID:              assetID,
		OriginalName:    filepath.Base(inputPath),
		FileHash:        fileHash,
		FileType:        string(file.Classify(inputPath)),
		MimeType:        mimeType,
		FileSizeBytes:   info.Size(),
		Width:           &result.Width,
		Height:          &result.Height,
		DurationSeconds: result.DurationSeconds,
		StoragePath:     result.StoragePath,
		ThumbnailPath:   &result.ThumbnailPath,
		PreviewPath:     result.PreviewPath,
		EncryptionKeyID: key.ID,
		ExtraMetadata:   result.ExtraMetadata,
	}
	if err := p.catalog.SaveMediaMetadata(ctx, meta); err != nil {
		return "", err
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("remove source file: %w", err)
	}

	p.logger.Info("successfully processed",
		zap.String("path", inputPath),
		zap.String("asset_id", assetID))
	return "", nil
}

// jobTempDir returns a fresh temp directory namespaced to this job so
// concurrent jobs never collide.
func (p *MediaProcessor) jobTempDir() (string, error) {
	dir := filepath.Join(p.storage.Temp, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job temp dir: %w", err)
	}
	return dir, nil
}
