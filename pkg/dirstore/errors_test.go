package dirstore

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"not found", &Error{Kind: KindNotFound, Key: "alice"}, "dirstore: alice: not found"},
		{"invalid key", &Error{Kind: KindInvalidKey, Key: "a/b"}, `dirstore: "a/b": invalid key`},
		{"restore", &Error{Kind: KindRestore, Key: "k", Path: "/d/k", Err: errors.New("bad digit")}, "dirstore: restore error: /d/k: bad digit"},
		{"store key only", &Error{Kind: KindStore, Key: "k", Err: errors.New("boom")}, "dirstore: store error: k: boom"},
		{"io bare", &Error{Kind: KindIO}, "dirstore: i/o error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Kind: KindRestore, Path: "/x", Err: fs.ErrPermission})

	if !errors.Is(err, ErrRestore) {
		t.Error("errors.Is(err, ErrRestore) = false")
	}
	if errors.Is(err, ErrStore) {
		t.Error("errors.Is(err, ErrStore) = true, kinds differ")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("cause should be reachable through Unwrap")
	}

	var e *Error
	if !errors.As(err, &e) || e.Path != "/x" {
		t.Fatalf("errors.As failed or wrong path: %+v", e)
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(&Error{Kind: KindOS}); k != KindOS {
		t.Errorf("KindOf = %v, want %v", k, KindOS)
	}
	if k := KindOf(errors.New("plain")); k != 0 {
		t.Errorf("KindOf(plain) = %v, want 0", k)
	}
	if k := KindOf(nil); k != 0 {
		t.Errorf("KindOf(nil) = %v, want 0", k)
	}
}

func TestKind_String(t *testing.T) {
	for k := KindOS; k <= KindInvalidKey; k++ {
		if s := k.String(); s == "" || strings.HasPrefix(s, "kind(") {
			t.Errorf("Kind(%d).String() = %q", int(k), s)
		}
	}
	if s := Kind(99).String(); s != "kind(99)" {
		t.Errorf("Kind(99).String() = %q", s)
	}
}
