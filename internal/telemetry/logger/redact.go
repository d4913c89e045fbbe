package logger

import (
	"encoding/hex"
	"log/slog"
	"strings"
)

// Attribute keys whose non-empty string values are always redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"credential",
	"cipher_key",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()
		if looksLikeKeyMaterial(strVal) {
			return slog.String(a.Key, maskValue(strVal))
		}
		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// looksLikeKeyMaterial reports whether v is a hex-encoded 256-bit key.
func looksLikeKeyMaterial(v string) bool {
	if len(v) != 64 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}

// maskValue keeps the first and last 4 characters.
func maskValue(value string) string {
	if len(value) <= 12 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// IsSensitiveKey reports whether an attribute key suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// RedactString masks v if it looks like key material.
func RedactString(v string) string {
	if looksLikeKeyMaterial(v) {
		return maskValue(v)
	}
	return v
}
