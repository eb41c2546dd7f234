// Package keystore surfaces the active content-encryption key and keeps
// the raw key file the streaming encoder reads in sync with it.
package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mediavault/internal/db"
	"mediavault/internal/utils/encryption"
)

// ErrKeyUnavailable means the active key could neither be created nor
// retrieved; operator intervention is expected.
var ErrKeyUnavailable = errors.New("unable to create or retrieve encryption key")

// keyFileName is the well-known raw key file under the private dir.
const keyFileName = "encryption.key"

// Catalog is the slice of the catalog store the keystore uses.
type Catalog interface {
	GetActiveKey(ctx context.Context) (*db.EncryptionKey, error)
	CreateActiveKey(ctx context.Context, keyHex, ivHex string) (*db.EncryptionKey, error)
}

// KeyStore manages the active-key singleton and its raw-file cache.
type KeyStore struct {
	catalog Catalog
	keyFile string
	logger  *zap.Logger
}

func New(catalog Catalog, privateDir string, logger *zap.Logger) *KeyStore {
	return &KeyStore{
		catalog: catalog,
		keyFile: filepath.Join(privateDir, keyFileName),
		logger:  logger,
	}
}

// KeyFilePath is the path of the raw key file referenced by key-info
// descriptors.
func (k *KeyStore) KeyFilePath() string {
	return k.keyFile
}

// Active returns the active encryption key, creating one if none exists,
// and rewrites the raw key file from it. Key creation can race with
// another process: on insert failure the select is retried before giving
// up.
func (k *KeyStore) Active(ctx context.Context) (*db.EncryptionKey, error) {
	key, err := k.catalog.GetActiveKey(ctx)
	if err != nil {
		return nil, err
	}

	if key == nil {
		key, err = k.createKey(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := k.writeKeyFile(key.KeyValue); err != nil {
		return nil, err
	}
	return key, nil
}

func (k *KeyStore) createKey(ctx context.Context) (*db.EncryptionKey, error) {
	keyBytes, err := encryption.NewKey()
	if err != nil {
		return nil, err
	}
	ivBytes, err := encryption.NewIV()
	if err != nil {
		return nil, err
	}

	key, err := k.catalog.CreateActiveKey(ctx, hex.EncodeToString(keyBytes), hex.EncodeToString(ivBytes))
	if err != nil {
		k.logger.Error("failed to create encryption key, retrying select", zap.Error(err))
		existing, selErr := k.catalog.GetActiveKey(ctx)
		if selErr != nil {
			return nil, selErr
		}
		if existing == nil {
			return nil, ErrKeyUnavailable
		}
		return existing, nil
	}

	k.logger.Info("created new encryption key", zap.Int64("key_id", key.ID))
	return key, nil
}

// writeKeyFile writes the raw 16 key bytes for the streaming encoder.
// The write is idempotent; a file that already holds the key is left
// alone, and otherwise the bytes go to a temporary file that is renamed
// over the key file, so the file is never truncated in place.
func (k *KeyStore) writeKeyFile(keyHex string) error {
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}

	if existing, err := os.ReadFile(k.keyFile); err == nil && string(existing) == string(keyBytes) {
		return nil
	}

	tmpFile := k.keyFile + ".tmp"
	if err := os.WriteFile(tmpFile, keyBytes, 0o600); err != nil {
		return fmt.Errorf("write raw key file: %w", err)
	}
	if err := os.Rename(tmpFile, k.keyFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("replace raw key file: %w", err)
	}
	return nil
}
