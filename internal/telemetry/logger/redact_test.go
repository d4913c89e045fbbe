package logger

import (
	"log/slog"
	"strings"
	"testing"
)

const hexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestRedact_SensitiveKeys(t *testing.T) {
	l, buf := newJSON(t, "info")

	l.Info("unlocking", "passphrase", "hunter2", "key", "alice", "dir", "/data")

	entry := decode(t, buf)
	if entry["passphrase"] != redactedValue {
		t.Errorf("passphrase = %v, want redacted", entry["passphrase"])
	}
	if entry["key"] != "alice" {
		t.Errorf("entry key should not be redacted, got %v", entry["key"])
	}
	if entry["dir"] != "/data" {
		t.Errorf("dir = %v", entry["dir"])
	}
}

func TestRedact_KeyMaterialValue(t *testing.T) {
	l, buf := newJSON(t, "info")

	l.Info("loaded", "value", hexKey)

	got, _ := decode(t, buf)["value"].(string)
	if got == hexKey || !strings.HasPrefix(got, "0001...") || !strings.HasSuffix(got, "1e1f") {
		t.Errorf("value = %q, want masked key", got)
	}
}

func TestRedact_Groups(t *testing.T) {
	l, buf := newJSON(t, "info")

	l.Info("config", slog.Group("cipher", slog.String("secret", "x"), slog.String("type", "aes-gcm")))

	group, _ := decode(t, buf)["cipher"].(map[string]any)
	if group["secret"] != redactedValue {
		t.Errorf("cipher.secret = %v, want redacted", group["secret"])
	}
	if group["type"] != "aes-gcm" {
		t.Errorf("cipher.type = %v", group["type"])
	}
}

func TestRedactString(t *testing.T) {
	if got := RedactString(hexKey); got == hexKey {
		t.Error("RedactString did not mask key material")
	}
	if got := RedactString("plain"); got != "plain" {
		t.Errorf("RedactString(plain) = %q", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"password":   true,
		"API_SECRET": true,
		"cipher_key": true,
		"key":        false,
		"dir":        false,
	}
	for k, want := range tests {
		if got := IsSensitiveKey(k); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", k, got, want)
		}
	}
}
