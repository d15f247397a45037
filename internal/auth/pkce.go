package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes (256 bits) encodes to 43 base64url characters.
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the CSRF state
	// parameter round-tripped through the authorization redirect.
	stateBytes = 32
)

// PKCEPair holds a code verifier and its S256 challenge for one
// authentication attempt. The verifier must never be logged or
// persisted; it lives only for the duration of a single flow.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE generates a fresh PKCE pair. The verifier is 32 bytes of
// cryptographically secure randomness, base64url-encoded without
// padding; the challenge is the base64url SHA-256 digest of the
// verifier's ASCII bytes. A new pair must be generated for every
// attempt: reuse breaks the proof-of-possession property.
func GeneratePKCE() (PKCEPair, error) {
	raw := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, fmt.Errorf("generating PKCE verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))

	return PKCEPair{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// GenerateState generates the random opaque state value embedded in an
// authorization request and verified on redirect. Single-use.
func GenerateState() (string, error) {
	raw := make([]byte, stateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
