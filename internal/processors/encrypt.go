package processors

import (
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"

	"mediavault/internal/db"
	"mediavault/internal/utils/encryption"
)

// minEncryptedSize is the smallest well-formed artifact: a 16-byte IV
// plus one ciphertext block.
const minEncryptedSize = 2 * encryption.BlockSize

// encryptArtifact encrypts plainPath into encPath with the active key
// and a fresh IV, then removes the plaintext. A missing or empty
// plaintext, or an encryption failure, degrades to a placeholder
// artifact so the catalog row always references a readable file.
func (p *MediaProcessor) encryptArtifact(plainPath, encPath string, key *db.EncryptionKey) error {
	keyBytes, err := hex.DecodeString(key.KeyValue)
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}

	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		p.logger.Error("file to encrypt does not exist, writing placeholder",
			zap.String("path", plainPath),
			zap.Error(err))
		return p.writePlaceholderArtifact(encPath, keyBytes)
	}
	if len(plaintext) == 0 {
		p.logger.Error("file to encrypt is empty, writing placeholder",
			zap.String("path", plainPath))
		os.Remove(plainPath)
		return p.writePlaceholderArtifact(encPath, keyBytes)
	}
	if len(plaintext) < 100 {
		p.logger.Warn("file to encrypt is suspiciously small",
			zap.String("path", plainPath),
			zap.Int("size", len(plaintext)))
	}

	iv, err := encryption.NewIV()
	if err != nil {
		return err
	}
	if err := encryption.EncryptToFile(encPath, keyBytes, iv, plaintext); err != nil {
		p.logger.Error("encryption failed, writing placeholder",
			zap.String("path", plainPath),
			zap.Error(err))
		os.Remove(encPath)
		return p.writePlaceholderArtifact(encPath, keyBytes)
	}

	if info, err := os.Stat(encPath); err == nil && info.Size() < minEncryptedSize {
		p.logger.Error("encrypted file is anomalously small",
			zap.String("path", encPath),
			zap.Int64("size", info.Size()))
	}

	if err := os.Remove(plainPath); err != nil {
		return fmt.Errorf("remove plaintext after encryption: %w", err)
	}
	return nil
}

// writePlaceholderArtifact emits the canonical 1x1 WebP encrypted with
// an all-zero IV under the active key.
func (p *MediaProcessor) writePlaceholderArtifact(encPath string, keyBytes []byte) error {
	iv := make([]byte, encryption.BlockSize)
	if err := encryption.EncryptToFile(encPath, keyBytes, iv, placeholderWebP); err != nil {
		return fmt.Errorf("write placeholder artifact: %w", err)
	}
	p.logger.Warn("created placeholder encrypted artifact", zap.String("path", encPath))
	return nil
}
