package services

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// generateCodeVerifier creates a cryptographically random PKCE code verifier
// (RFC 7636). golang.org/x/oauth2 generates a verifier in the recommended
// 43-128 character range using the same base64url-no-padding alphabet.
func generateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// generateCodeChallenge creates the S256 code challenge for a verifier.
func generateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// generateState creates a random state parameter for CSRF/correlation.
func generateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
