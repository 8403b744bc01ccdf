// Package pkce generates the random material for OAuth2 authorization-code
// flows with PKCE (RFC 7636, S256 method).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	verifierBytes = 64
	stateBytes    = 32
)

// Verifier returns a fresh high-entropy code verifier.
func Verifier() (string, error) {
	return randomString(verifierBytes)
}

// Challenge derives the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// State returns a fresh CSRF correlation token, independent of the verifier.
func State() (string, error) {
	return randomString(stateBytes)
}

func randomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
