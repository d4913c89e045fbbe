package dirstore

import (
	"errors"
	"fmt"
)

// Kind classifies a storage error.
type Kind int

const (
	// KindOS means a file could not be opened or created.
	KindOS Kind = iota + 1
	// KindIO means a low-level read, write, listing or rename failed.
	KindIO
	// KindNotFound means the key is not in the storage.
	KindNotFound
	// KindStore means a value failed to serialize.
	KindStore
	// KindRestore means a file's contents failed to deserialize.
	KindRestore
	// KindInvalidKey means the key cannot be used as a file name.
	KindInvalidKey
)

func (k Kind) String() string {
	switch k {
	case KindOS:
		return "os error"
	case KindIO:
		return "i/o error"
	case KindNotFound:
		return "not found"
	case KindStore:
		return "store error"
	case KindRestore:
		return "restore error"
	case KindInvalidKey:
		return "invalid key"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every fallible storage operation.
type Error struct {
	Kind Kind
	Key  string // entry key, when known
	Path string // file or directory path, when known
	Err  error  // underlying cause
}

// Sentinel errors for errors.Is. They match any *Error of the same Kind.
var (
	ErrOS         = &Error{Kind: KindOS}
	ErrIO         = &Error{Kind: KindIO}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrStore      = &Error{Kind: KindStore}
	ErrRestore    = &Error{Kind: KindRestore}
	ErrInvalidKey = &Error{Kind: KindInvalidKey}
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("dirstore: %s: not found", e.Key)
	case KindInvalidKey:
		return fmt.Sprintf("dirstore: %q: invalid key", e.Key)
	}

	msg := "dirstore: " + e.Kind.String()
	if e.Path != "" {
		msg += ": " + e.Path
	} else if e.Key != "" {
		msg += ": " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err, or 0 if err is not a storage error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
