package processors

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediavault/internal/db"
	"mediavault/internal/utils/encryption"
)

// processVideo probes the input, emits an encrypted HLS stream, and in
// parallel generates the animated thumbnail and preview. The job fails
// when the encoder fails; the thumbnail task always produces artifacts.
func (p *MediaProcessor) processVideo(ctx context.Context, inputPath, videoID string, key *db.EncryptionKey) (*transformResult, error) {
	outputDir := filepath.Join(p.storage.Videos, videoID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create video output dir: %w", err)
	}

	probe, err := p.runner.Probe(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	// Per-video stream IV, independent of the long-lived key IV.
	ivBytes, err := encryption.NewIV()
	if err != nil {
		return nil, err
	}
	iv := hex.EncodeToString(ivBytes)

	keyInfoPath, err := p.writeKeyInfoFile(videoID, iv)
	if err != nil {
		return nil, err
	}
	defer os.Remove(keyInfoPath)

	var thumbnailPlain, previewPlain string
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		thumbnailPlain, previewPlain = p.generateVideoThumbnails(gctx, inputPath, outputDir, probe.Duration)
		return nil
	})

	g.Go(func() error {
		return p.runner.Run(gctx, "ffmpeg",
			"-i", inputPath,
			"-vf", hlsScaleFilter(p.media.Video.MaxWidth, p.media.Video.MaxHeight),
			"-c:v", "libx264",
			"-preset", p.media.Video.Preset,
			"-crf", fmt.Sprintf("%d", p.media.Video.CRF),
			"-c:a", "aac",
			"-b:a", p.media.Video.AudioBitrate,
			"-hls_time", fmt.Sprintf("%d", p.media.Video.SegmentDuration),
			"-hls_list_size", "0",
			"-hls_segment_filename", filepath.Join(outputDir, "segment%03d.ts"),
			"-hls_key_info_file", keyInfoPath,
			"-hls_segment_type", "mpegts",
			"-hls_flags", "delete_segments+independent_segments",
			filepath.Join(outputDir, "stream.m3u8"),
		)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.encryptArtifact(thumbnailPlain, thumbnailPlain+".enc", key); err != nil {
		return nil, err
	}
	if err := p.encryptArtifact(previewPlain, previewPlain+".enc", key); err != nil {
		return nil, err
	}

	width, height := scaleToFitEven(probe.Width, probe.Height, p.media.Video.MaxWidth, p.media.Video.MaxHeight)
	duration := probe.Duration

	p.logger.Info("video processed",
		zap.String("video_id", videoID),
		zap.Float64("duration", duration),
		zap.Int("width", width),
		zap.Int("height", height))

	previewPath := fmt.Sprintf("videos/%s/preview.webp.enc", videoID)
	return &transformResult{
		Width:           int32(width),
		Height:          int32(height),
		DurationSeconds: &duration,
		StoragePath:     fmt.Sprintf("videos/%s/stream.m3u8", videoID),
		ThumbnailPath:   fmt.Sprintf("videos/%s/thumbnail.webp.enc", videoID),
		PreviewPath:     &previewPath,
		ExtraMetadata:   map[string]any{"iv": iv},
	}, nil
}

// writeKeyInfoFile emits the three-line descriptor the streaming
// encoder consumes: key-delivery URL, raw key path, per-video IV.
func (p *MediaProcessor) writeKeyInfoFile(videoID, iv string) (string, error) {
	keyInfoPath := filepath.Join(p.storage.Private, fmt.Sprintf("key_info_%s.txt", videoID))
	content := fmt.Sprintf("%s/api/media/keys/%s\n%s\n%s\n", p.baseURL, videoID, p.keys.KeyFilePath(), iv)
	if err := os.WriteFile(keyInfoPath, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write key info file: %w", err)
	}
	return keyInfoPath, nil
}

// hlsScaleFilter downscales so the frame fits in the maxW x maxH box,
// preserving aspect ratio and forcing even dimensions for H.264.
func hlsScaleFilter(maxW, maxH int) string {
	return fmt.Sprintf(
		"scale=w=trunc(iw*min(1\\,min(%d/iw\\,%d/ih))/2)*2:h=trunc(ih*min(1\\,min(%d/iw\\,%d/ih))/2)*2",
		maxW, maxH, maxW, maxH,
	)
}

// scaleToFitEven mirrors hlsScaleFilter so the recorded dimensions match
// the emitted stream. Integer arithmetic avoids the off-by-two that
// float truncation produces on exact ratios like 1920x1080 into
// 1280x720.
func scaleToFitEven(w, h, maxW, maxH int) (int, int) {
	outW, outH := w, h
	if w > maxW || h > maxH {
		if maxW*h <= maxH*w {
			outW, outH = maxW, h*maxW/w
		} else {
			outW, outH = w*maxH/h, maxH
		}
	}
	return outW / 2 * 2, outH / 2 * 2
}
