package paymob

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

// ErrSecretNotConfigured is returned when verification is attempted without a
// shared secret. This is an operational error, not a trust decision: callers
// must fail the whole request rather than treat the message as unverified.
var ErrSecretNotConfigured = errors.New("paymob: hmac secret not configured")

var hexDigest = regexp.MustCompile(`^[0-9a-f]+$`)

// Verifier checks gateway signatures using the shared HMAC secret. Construct
// one at startup and inject it; the secret is never mutated afterwards.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier from the configured shared secret. An empty
// secret is refused so a misconfigured process cannot come up half-trusting.
func NewVerifier(secret string) (*Verifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrSecretNotConfigured
	}
	return &Verifier{secret: []byte(trimmed)}, nil
}

// Verify recomputes HMAC-SHA512 over the scope's signed field concatenation
// and compares it against the supplied hex digest in constant time. Every
// input-shape problem yields (false, nil); the only error is the missing
// secret. The result leaks nothing about which step rejected the message.
func (v *Verifier) Verify(tx Transaction, providedHex string, scope MessageScope) (bool, error) {
	if v == nil || len(v.secret) == 0 {
		return false, ErrSecretNotConfigured
	}
	provided := strings.ToLower(strings.TrimSpace(providedHex))
	if provided == "" {
		return false, nil
	}
	if !hexDigest.MatchString(provided) {
		return false, nil
	}
	paths := fieldsForScope(scope)
	if len(paths) == 0 {
		return false, nil
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write([]byte(SigningString(tx, paths)))
	expected := mac.Sum(nil)
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false, nil
	}
	if len(decoded) != len(expected) {
		return false, nil
	}
	return hmac.Equal(expected, decoded), nil
}

// Sign computes the hex HMAC digest for a transaction under the given scope.
// It exists for tests and for reconciliation tooling; production handlers
// only ever compare, never emit, signatures.
func (v *Verifier) Sign(tx Transaction, scope MessageScope) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", ErrSecretNotConfigured
	}
	paths := fieldsForScope(scope)
	mac := hmac.New(sha512.New, v.secret)
	mac.Write([]byte(SigningString(tx, paths)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
