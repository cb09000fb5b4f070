package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrDecryptionFailed covers every decrypt failure: malformed base64,
	// truncated blob, tag mismatch, wrong key. Callers must not infer
	// "value is plaintext" from it; that fallback belongs to the
	// masked-view path only.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher protects provider API keys with AES-256-GCM. Blobs are
// base64(nonce || ciphertext || tag) with a 12-byte nonce.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64-encoded 256-bit key.
func NewCipher(base64Key string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key encoding: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("crypto: key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating block cipher: %w", err)
	}

	// Zero the decoded key once the AEAD holds its own schedule
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// GenerateCipherKey returns a fresh base64-encoded 256-bit key.
func GenerateCipherKey() (string, error) {
	key, err := GenerateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plainText under a fresh random nonce. Two calls with the
// same input always produce different blobs.
func (c *Cipher) Encrypt(plainText string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure returns ErrDecryptionFailed without
// detail; GCM cannot distinguish tampering from a wrong key or corruption,
// and the distinction must not leak to callers either way.
func (c *Cipher) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", ErrDecryptionFailed
	}

	nonce, sealed := data[:ns], data[ns:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plain), nil
}
