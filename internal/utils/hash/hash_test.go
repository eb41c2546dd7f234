package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestSumSHA256(t *testing.T) {
	t.Run("KnownDigest", func(t *testing.T) {
		path := writeTemp(t, []byte("hello world"))
		digest, err := SumSHA256(path)
		require.NoError(t, err)
		assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", digest)
	})

	t.Run("MatchesWholeFileDigestAcrossChunks", func(t *testing.T) {
		content := make([]byte, ChunkSize*3+123)
		_, err := rand.Read(content)
		require.NoError(t, err)
		path := writeTemp(t, content)

		digest, err := SumSHA256(path)
		require.NoError(t, err)

		want := sha256.Sum256(content)
		assert.Equal(t, hex.EncodeToString(want[:]), digest)
	})

	t.Run("EmptyFile", func(t *testing.T) {
		path := writeTemp(t, nil)
		digest, err := SumSHA256(path)
		require.NoError(t, err)
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", digest)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := SumSHA256(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}

func TestNewAssetID(t *testing.T) {
	id := NewAssetID("/imports/a.jpg")
	assert.Len(t, id, AssetIDLength)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]+$`), id)

	other := NewAssetID("/imports/b.jpg")
	assert.NotEqual(t, id, other)
}
