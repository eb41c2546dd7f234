package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/h2non/bimg"
	"go.uber.org/zap"

	"mediavault/internal/db"
)

// white is the background alpha channels are flattened onto.
var white = bimg.Color{R: 255, G: 255, B: 255}

// processImage decodes the input, flattens any alpha channel over white,
// caps the main rendition at the configured maximum dimensions, derives
// the fixed-width thumbnail, and encrypts both artifacts.
func (p *MediaProcessor) processImage(ctx context.Context, inputPath, imageID string, key *db.EncryptionKey) (*transformResult, error) {
	srcBuf, err := bimg.Read(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	img := bimg.NewImage(srcBuf)
	meta, err := img.Metadata()
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	originalWidth, originalHeight := meta.Size.Width, meta.Size.Height
	if originalWidth == 0 || originalHeight == 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", originalWidth, originalHeight)
	}

	mainOpts := bimg.Options{
		Type:    bimg.WEBP,
		Quality: p.media.Image.Quality,
	}
	if meta.Alpha {
		// A non-black background makes libvips flatten the alpha
		// channel against it.
		mainOpts.Background = white
	}

	if originalWidth > p.media.Image.MaxWidth || originalHeight > p.media.Image.MaxHeight {
		mainOpts.Width, mainOpts.Height = scaleToFit(originalWidth, originalHeight, p.media.Image.MaxWidth, p.media.Image.MaxHeight)
	}

	mainBuf, err := bimg.NewImage(srcBuf).Process(mainOpts)
	if err != nil {
		return nil, fmt.Errorf("encode main image: %w", err)
	}

	// Record what was actually encoded, not what was requested.
	outSize, err := bimg.NewImage(mainBuf).Size()
	if err != nil {
		return nil, fmt.Errorf("read output image size: %w", err)
	}
	width, height := outSize.Width, outSize.Height

	thumbHeight := proportionalHeight(p.media.Thumbnail.Width, originalWidth, originalHeight)
	thumbOpts := bimg.Options{
		Type:    bimg.WEBP,
		Quality: p.media.Thumbnail.Quality,
		Width:   p.media.Thumbnail.Width,
		Height:  thumbHeight,
		Enlarge: true,
	}
	if meta.Alpha {
		thumbOpts.Background = white
	}
	thumbBuf, err := bimg.NewImage(srcBuf).Process(thumbOpts)
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	// Plaintext renditions stage in the job temp dir so the served tree
	// only ever contains encrypted artifacts.
	tempDir, err := p.jobTempDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	mainPlain := filepath.Join(tempDir, imageID+".webp")
	thumbPlain := filepath.Join(tempDir, imageID+"_thumb.webp")
	if err := bimg.Write(mainPlain, mainBuf); err != nil {
		return nil, fmt.Errorf("write main image: %w", err)
	}
	if err := bimg.Write(thumbPlain, thumbBuf); err != nil {
		return nil, fmt.Errorf("write thumbnail: %w", err)
	}

	mainEnc := filepath.Join(p.storage.Images, imageID+".webp.enc")
	thumbEnc := filepath.Join(p.storage.Images, imageID+"_thumb.webp.enc")
	if err := p.encryptArtifact(mainPlain, mainEnc, key); err != nil {
		return nil, err
	}
	if err := p.encryptArtifact(thumbPlain, thumbEnc, key); err != nil {
		return nil, err
	}

	p.logger.Info("image processed",
		zap.String("image_id", imageID),
		zap.Int("width", width),
		zap.Int("height", height))

	thumbnailPath := fmt.Sprintf("images/%s_thumb.webp.enc", imageID)
	return &transformResult{
		Width:         int32(width),
		Height:        int32(height),
		StoragePath:   fmt.Sprintf("images/%s.webp.enc", imageID),
		ThumbnailPath: thumbnailPath,
	}, nil
}

// scaleToFit shrinks (w, h) so both fit within (maxW, maxH), preserving
// aspect ratio; inputs already inside the box are unchanged.
func scaleToFit(w, h, maxW, maxH int) (int, int) {
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	if scale >= 1 {
		return w, h
	}
	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}

// proportionalHeight returns the height matching a target width at the
// source aspect ratio.
func proportionalHeight(targetWidth, srcWidth, srcHeight int) int {
	h := int(float64(targetWidth) * float64(srcHeight) / float64(srcWidth))
	if h < 1 {
		h = 1
	}
	return h
}
