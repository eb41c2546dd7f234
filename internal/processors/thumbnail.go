package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// minArtifactSize is the smallest plausible WebP output; anything under
// it is treated as a failed generation.
const minArtifactSize = 1000

// thumbnailStart picks the capture start: 10% into the video, but at
// least 5 seconds in.
func thumbnailStart(duration float64) float64 {
	return max(5, duration*0.1)
}

// generateVideoThumbnails produces the animated thumbnail and preview
// for a video, degrading through static fallbacks down to an embedded
// placeholder so the pipeline is never blocked on artwork. It returns
// the plaintext artifact paths; both files are guaranteed to exist.
func (p *MediaProcessor) generateVideoThumbnails(ctx context.Context, inputPath, outputDir string, duration float64) (string, string) {
	thumbnailPath := filepath.Join(outputDir, "thumbnail.webp")
	previewPath := filepath.Join(outputDir, "preview.webp")
	start := thumbnailStart(duration)

	animated := p.generateAnimatedThumbnail(ctx, inputPath, thumbnailPath, start)
	if !animated {
		p.createStaticThumbnail(ctx, inputPath, thumbnailPath, start)
	}

	if animated {
		if err := p.generateAnimatedPreview(ctx, inputPath, previewPath, start); err != nil {
			p.logger.Error("preview generation failed", zap.Error(err))
			if artifactUsable(thumbnailPath) {
				if err := copyFile(thumbnailPath, previewPath); err != nil {
					p.createStaticThumbnail(ctx, inputPath, previewPath, start+5)
				}
			} else {
				p.createStaticThumbnail(ctx, inputPath, previewPath, start+5)
			}
		}
	} else {
		p.createStaticThumbnail(ctx, inputPath, previewPath, start+5)
	}

	// Regenerate anything still missing or implausibly small; the last
	// resort inside createStaticThumbnail is the embedded placeholder.
	for _, path := range []string{thumbnailPath, previewPath} {
		if !artifactUsable(path) {
			p.logger.Error("artifact missing or too small, regenerating",
				zap.String("path", path))
			p.createStaticThumbnail(ctx, inputPath, path, start)
		}
	}

	return thumbnailPath, previewPath
}

// generateAnimatedThumbnail attempts the 3-second animated WebP and
// reports whether it produced a usable file.
func (p *MediaProcessor) generateAnimatedThumbnail(ctx context.Context, inputPath, outputPath string, start float64) bool {
	err := p.runner.Run(ctx, "ffmpeg",
		"-i", inputPath,
		"-ss", formatSeconds(start),
		"-t", fmt.Sprintf("%d", p.media.Thumbnail.Duration),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", p.media.Thumbnail.FPS, p.media.Thumbnail.Width),
		"-c:v", "libwebp",
		"-lossless", "0",
		"-compression_level", fmt.Sprintf("%d", p.media.Thumbnail.CompressionLevel),
		"-quality", fmt.Sprintf("%d", p.media.Thumbnail.Quality),
		"-preset", "default",
		"-loop", "0",
		"-an",
		"-vsync", "0",
		"-y",
		outputPath,
	)
	if err != nil {
		p.logger.Error("animated thumbnail generation failed", zap.Error(err))
		return false
	}
	if !artifactUsable(outputPath) {
		p.logger.Error("animated thumbnail too small or missing",
			zap.String("path", outputPath))
		return false
	}
	return true
}

// generateAnimatedPreview samples up to MaxFrames frames from a 10 s
// window after start.
func (p *MediaProcessor) generateAnimatedPreview(ctx context.Context, inputPath, outputPath string, start float64) error {
	return p.runner.Run(ctx, "ffmpeg",
		"-i", inputPath,
		"-ss", formatSeconds(start),
		"-t", "10",
		"-vf", fmt.Sprintf("fps=1,scale=%d:-1:flags=lanczos,select='not(mod(n\\,%d))'", p.media.Preview.Width, p.media.Preview.FPS),
		"-frames:v", fmt.Sprintf("%d", p.media.Preview.MaxFrames),
		"-c:v", "libwebp",
		"-lossless", "0",
		"-compression_level", fmt.Sprintf("%d", p.media.Preview.CompressionLevel),
		"-quality", fmt.Sprintf("%d", p.media.Preview.Quality),
		"-preset", "default",
		"-loop", "0",
		"-an",
		"-vsync", "0",
		"-y",
		outputPath,
	)
}

// createStaticThumbnail extracts a single frame, trying a WebP encode
// first and a codec-default encode slightly earlier second. When both
// fail it writes the embedded placeholder so the artifact always
// exists.
func (p *MediaProcessor) createStaticThumbnail(ctx context.Context, inputPath, outputPath string, start float64) {
	attempts := [][]string{
		{
			"-i", inputPath,
			"-ss", formatSeconds(start),
			"-vframes", "1",
			"-vf", fmt.Sprintf("scale=%d:-1:flags=lanczos", p.media.Thumbnail.Width),
			"-c:v", "libwebp",
			"-lossless", "0",
			"-compression_level", fmt.Sprintf("%d", p.media.Thumbnail.CompressionLevel),
			"-quality", fmt.Sprintf("%d", p.media.Thumbnail.Quality),
			"-y",
			outputPath,
		},
		{
			"-i", inputPath,
			"-ss", formatSeconds(max(0, start-2)),
			"-vframes", "1",
			"-vf", fmt.Sprintf("scale=%d:-1:flags=lanczos", p.media.Thumbnail.Width),
			"-y",
			outputPath,
		},
	}

	for i, args := range attempts {
		if err := p.runner.Run(ctx, "ffmpeg", args...); err != nil {
			p.logger.Error("static thumbnail attempt failed",
				zap.Int("attempt", i+1),
				zap.Error(err))
			continue
		}
		if artifactUsable(outputPath) {
			return
		}
		p.logger.Error("static thumbnail attempt produced unusable file",
			zap.Int("attempt", i+1),
			zap.String("path", outputPath))
	}

	p.logger.Error("all thumbnail attempts failed, writing placeholder",
		zap.String("path", outputPath))
	if err := os.WriteFile(outputPath, placeholderWebP, 0o644); err != nil {
		p.logger.Error("failed to write placeholder thumbnail", zap.Error(err))
	}
}

// artifactUsable reports whether the file exists and clears the minimum
// size bar.
func artifactUsable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() >= minArtifactSize
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%g", s)
}
