package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder emitted for sensitive payment fields. Log
// lines may reference that a signature or card number was present, never its
// content: a leaked computed signature is as good as the secret itself.
const RedactedValue = "[REDACTED]"

// Signature returns a loggable attribute for a gateway signature. Only the
// fact that one was supplied survives into the log stream.
func Signature(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	return slog.String(key, RedactedValue)
}

// PAN masks a card number down to its trailing digits. Paymob already
// truncates the pan field, but redirect parameters are attacker-supplied and
// may carry anything.
func PAN(key, value string) slog.Attr {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 4 {
		return slog.String(key, trimmed)
	}
	return slog.String(key, "****"+trimmed[len(trimmed)-4:])
}
