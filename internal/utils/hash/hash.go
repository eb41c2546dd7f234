package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// ChunkSize is the read granularity for streaming digests.
const ChunkSize = 4096

// AssetIDLength is the hex length of generated asset identifiers.
const AssetIDLength = 16

// SumSHA256 streams the file through SHA-256 in ChunkSize reads and
// returns the hex digest. This digest is the dedup key.
func SumSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read file for hashing: %w", readErr)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// NewAssetID derives an opaque 16-hex identifier from the source path and
// the current time. Unlike the dedup digest, the ID is not a contract;
// it only has to be unique per ingest.
func NewAssetID(path string) string {
	hasher := blake3.New()
	hasher.Write([]byte(path))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	hasher.Write(ts[:])

	return hex.EncodeToString(hasher.Sum(nil))[:AssetIDLength]
}
