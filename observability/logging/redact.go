package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// secretMarkers name the key material a ledger node touches: the keeper's
// signing key (keystore or hex env), its passphrase, and OTLP auth headers.
var secretMarkers = []string{
	"private_key",
	"privkey",
	"keeper_key",
	"signing_key",
	"passphrase",
	"password",
	"secret",
	"authorization",
	"token",
}

// IsSecretKey reports whether a log attribute key names secret material.
func IsSecretKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, marker := range secretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskField returns a string attribute whose value is replaced unless it is
// empty. Use it for values that are secret regardless of their key.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskHeaders logs header names as a group with every value masked, so an
// operator can see which OTLP headers were configured without leaking them.
func MaskHeaders(key string, headers map[string]string) slog.Attr {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, MaskField(name, headers[name]))
	}
	return slog.Group(key, attrs...)
}

// redactSecrets is the handler hook that masks any string attribute logged
// under a secret-looking key, including ones nested in groups.
func redactSecrets(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindString && IsSecretKey(attr.Key) {
		return MaskField(attr.Key, attr.Value.String())
	}
	return attr
}
