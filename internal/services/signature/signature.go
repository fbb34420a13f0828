// Package signature verifies the authenticity of inbound provider
// callbacks. Verification happens before any ledger or balance access so a
// forged request can not probe state through timing or side effects.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex HMAC-SHA256 of the concatenated message parts with
// the provider's shared secret.
func Sign(secret string, parts ...string) string {
	m := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		m.Write([]byte(p))
	}
	return hex.EncodeToString(m.Sum(nil))
}

// Verify checks a header-supplied signature against the expected HMAC using
// a constant-time comparison. A missing or malformed signature fails.
func Verify(secret, supplied string, parts ...string) bool {
	if supplied == "" {
		return false
	}
	suppliedMAC, err := hex.DecodeString(supplied)
	if err != nil {
		return false
	}
	m := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		m.Write([]byte(p))
	}
	return hmac.Equal(suppliedMAC, m.Sum(nil))
}
