// Package secrets encrypts bot credentials at rest with AES-256-GCM.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	errs "github.com/piyasasohbet/piyasabot/internal/errors"
)

const blobPrefix = "v1:"

// Box seals and opens credential blobs with a single key.
type Box struct {
	gcm cipher.AEAD
}

// NewBox builds a Box from the configured key. A base64 value decoding to 32 bytes is
// used directly, anything else is treated as a passphrase and hashed with SHA-256.
func NewBox(rawKey string) (*Box, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, errs.NewConfigError("encryption key is not configured", nil)
	}

	key := decodeKey(rawKey)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.NewConfigError("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.NewConfigError("failed to create GCM", err)
	}
	return &Box{gcm: gcm}, nil
}

func decodeKey(raw string) []byte {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(raw); err == nil && len(b) == 32 {
			return b
		}
	}
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// Encrypt seals plain and returns "v1:" followed by base64(nonce || ciphertext).
func (b *Box) Encrypt(plain string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return blobPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any failure is a configuration error:
// the owning bot cannot send until an operator fixes the credential.
func (b *Box) Decrypt(blob string) (string, error) {
	if !strings.HasPrefix(blob, blobPrefix) {
		return "", errs.NewConfigError("unsupported credential blob format", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, blobPrefix))
	if err != nil {
		return "", errs.NewConfigError("credential blob is not valid base64", err)
	}
	ns := b.gcm.NonceSize()
	if len(raw) <= ns {
		return "", errs.NewConfigError("credential blob too short", nil)
	}
	plain, err := b.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", errs.NewConfigError("failed to decrypt credential", err)
	}
	return string(plain), nil
}
