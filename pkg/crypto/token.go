package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateRandomBytes generates cryptographically secure random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// GenerateToken generates a URL-safe random token
func GenerateToken(length int) (string, error) {
	b, err := GenerateRandomBytes(length)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GenerateAPIKey mints a platform API key with a recognizable prefix.
// Only the hash is stored; the full key is shown to the user once.
func GenerateAPIKey() (string, error) {
	token, err := GenerateToken(24)
	if err != nil {
		return "", err
	}
	return "vlx_" + token, nil
}

// HashToken returns the hex SHA-256 digest used to store API keys at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
