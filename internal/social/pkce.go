package social

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierBytes yields a 128 character verifier, the RFC 7636 maximum.
const verifierBytes = 96

// GenerateVerifier creates a PKCE code verifier and its S256 challenge.
func GenerateVerifier() (AuthorizationVerifier, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return AuthorizationVerifier{}, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return AuthorizationVerifier{
		Verifier:  verifier,
		Challenge: ChallengeFor(verifier),
	}, nil
}

// ChallengeFor derives the S256 code challenge for verifier.
func ChallengeFor(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
