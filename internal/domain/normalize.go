package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the matching key for an email address: trimmed,
// NFC normalised and lower-cased. Two addresses that differ only in case or
// in Unicode composition map to the same key.
func NormalizeEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return ""
	}
	// cases.Caser is stateful; build one per call.
	return cases.Lower(language.Und).String(norm.NFC.String(trimmed))
}

// domainAccessToken separates access-token digests from any other SHA-256
// use in the system.
const domainAccessToken = "agencyops/access-token/v1"

// tokenBytes is the entropy of a portal access token.
const tokenBytes = 32

// NewAccessToken returns a fresh opaque bearer string.
func NewAccessToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAccessToken computes the digest under which a token is stored.
// Format: SHA256(domain + 0x00 + token).
func HashAccessToken(token string) string {
	h := sha256.New()
	h.Write([]byte(domainAccessToken))
	h.Write([]byte{0x00})
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
