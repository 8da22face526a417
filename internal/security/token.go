package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const minTokenBytes = 32

// GenerateToken returns a cryptographically random token of length bytes of
// entropy, hex encoded. Lengths under 32 bytes (256 bits) are raised to 32.
func GenerateToken(length int) (string, error) {
	if length < minTokenBytes {
		length = minTokenBytes
	}

	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}

// ConstantTimeEquals compares two tokens without leaking how far they
// matched.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
