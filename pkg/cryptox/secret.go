package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Secret size constants (in bytes).
const (
	// SecretSize256 provides 256 bits of entropy, the floor for a signing
	// secret that keys an HMAC-SHA256.
	SecretSize256 = 32
	// SecretSize512 provides 512 bits of entropy for high-security secrets.
	SecretSize512 = 64
)

// GenerateSecret creates a cryptographically secure random secret of the
// specified byte length. Returns an error if the random number generator
// fails.
func GenerateSecret(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random secret: %w", err)
	}

	return buf, nil
}

// MustGenerateSecret is like GenerateSecret but panics on error.
// Use this only during initialization where failure is unrecoverable.
func MustGenerateSecret(size int) []byte {
	secret, err := GenerateSecret(size)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate secret: %v", err))
	}
	return secret
}

// EncodeSecret returns the base64url (no padding) form of a secret, suitable
// for logging a fingerprint or exporting to an environment variable.
func EncodeSecret(secret []byte) string {
	return base64.RawURLEncoding.EncodeToString(secret)
}
