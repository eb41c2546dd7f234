// Package encryption implements the at-rest artifact format: a 16-byte IV
// followed by AES-128-CBC ciphertext with PKCS#7 padding. Downstream HLS
// consumers decrypt with the same primitives, so the mode and padding are
// wire contracts.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
)

// BlockSize is the AES block size shared by key, IV, and padding.
const BlockSize = aes.BlockSize

// KeySize is the AES-128 key length in bytes.
const KeySize = 16

var (
	ErrBadPadding    = errors.New("invalid PKCS#7 padding")
	ErrBadCiphertext = errors.New("ciphertext is not block-aligned")
)

// NewIV returns a fresh 16-byte IV from the cryptographic RNG.
func NewIV() ([]byte, error) {
	iv := make([]byte, BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// NewKey returns fresh 16 random key bytes.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Pad appends PKCS#7 padding. The pad length is always in [1,16]: an
// already block-aligned input grows by a full block.
func Pad(plaintext []byte) []byte {
	padLen := BlockSize - len(plaintext)%BlockSize
	return append(plaintext, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// Unpad strips and validates PKCS#7 padding.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) == 0 || len(padded)%BlockSize != 0 {
		return nil, ErrBadPadding
	}
	padLen := int(padded[len(padded)-1])
	if padLen < 1 || padLen > BlockSize || padLen > len(padded) {
		return nil, ErrBadPadding
	}
	for _, b := range padded[len(padded)-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return padded[:len(padded)-padLen], nil
}

// Encrypt pads the plaintext and encrypts it with AES-128-CBC.
func Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	padded := Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt, validating and stripping the padding.
func Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, ErrBadCiphertext
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	return Unpad(padded)
}

// EncryptToFile writes IV || ciphertext to path.
func EncryptToFile(path string, key, iv, plaintext []byte) error {
	ciphertext, err := Encrypt(key, iv, plaintext)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(append([]byte{}, iv...), ciphertext...), 0o644)
}

// DecryptFile reads an IV || ciphertext artifact back into plaintext.
func DecryptFile(path string, key []byte) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 2*BlockSize {
		return nil, fmt.Errorf("encrypted file %s too short (%d bytes)", path, len(raw))
	}
	return Decrypt(key, raw[:BlockSize], raw[BlockSize:])
}
