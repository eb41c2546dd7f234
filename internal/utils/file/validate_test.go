package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want Kind
	}{
		{"photo.jpg", KindImage},
		{"photo.JPEG", KindImage},
		{"scan.png", KindImage},
		{"anim.gif", KindImage},
		{"pic.webp", KindImage},
		{"shot.HEIC", KindImage},
		{"shot.heif", KindImage},
		{"raw.dng", KindImage},
		{"clip.mp4", KindVideo},
		{"clip.AVI", KindVideo},
		{"clip.mov", KindVideo},
		{"clip.mkv", KindVideo},
		{"clip.wmv", KindVideo},
		{"clip.flv", KindVideo},
		{"clip.webm", KindVideo},
		{"notes.txt", KindUnknown},
		{"archive.tar.gz", KindUnknown},
		{"noextension", KindUnknown},
		{"/imports/nested/clip.mp4", KindVideo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.name))
		})
	}
}

func TestMimeTypeFromExtension(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeTypeFromExtension("a.jpg"))
	assert.Equal(t, "image/jpeg", MimeTypeFromExtension("a.JPEG"))
	assert.Equal(t, "image/dng", MimeTypeFromExtension("a.dng"))
	assert.Equal(t, "video/quicktime", MimeTypeFromExtension("a.mov"))
	assert.Equal(t, "video/x-matroska", MimeTypeFromExtension("a.mkv"))
	assert.Equal(t, "application/octet-stream", MimeTypeFromExtension("a.xyz"))
}

func TestMimeType(t *testing.T) {
	t.Run("SniffsContent", func(t *testing.T) {
		// A real (if tiny) WebP so content detection has signal.
		webp := []byte{
			'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00,
			'W', 'E', 'B', 'P', 'V', 'P', '8', ' ',
			0x18, 0x00, 0x00, 0x00, 0x30, 0x01, 0x00, 0x9d,
			0x01, 0x2a, 0x01, 0x00, 0x01, 0x00, 0x01, 0x40,
			0x25, 0xa4, 0x00, 0x03, 0x70, 0x00, 0xfe, 0xfb,
			0x94, 0x00, 0x00,
		}
		path := filepath.Join(t.TempDir(), "pic.webp")
		require.NoError(t, os.WriteFile(path, webp, 0o644))
		assert.Equal(t, "image/webp", MimeType(path))
	})

	t.Run("FallsBackToExtensionForMissingFile", func(t *testing.T) {
		assert.Equal(t, "video/mp4", MimeType(filepath.Join(t.TempDir(), "gone.mp4")))
	})
}
