package dirstore

import (
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/dirstore-go/pkg/crypto/adaptive"
)

const (
	// DefaultHiddenPrefix marks files that Restore and Prune ignore.
	DefaultHiddenPrefix = "."

	// DefaultFileMode is the permission used for newly created files.
	DefaultFileMode os.FileMode = 0644
)

// Observer receives one call per Restore, Store or StoreSingle.
//
// entries is the number of entries read or written before the call
// returned; err is the call's result.
type Observer interface {
	ObserveRestore(dir string, entries int, elapsed time.Duration, err error)
	ObserveStore(dir string, entries int, elapsed time.Duration, err error)
}

// Option configures a Storage.
type Option func(*options)

type options struct {
	hiddenPrefix string
	atomic       bool
	fileMode     os.FileMode
	cipher       adaptive.Cipher
	logger       *slog.Logger
	observer     Observer
}

func defaultOptions() *options {
	return &options{
		hiddenPrefix: DefaultHiddenPrefix,
		fileMode:     DefaultFileMode,
		logger:       slog.New(slog.DiscardHandler),
		observer:     nopObserver{},
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHiddenPrefix sets the file name prefix that marks non-payload files.
// An empty prefix disables hidden-file skipping.
func WithHiddenPrefix(prefix string) Option {
	return func(o *options) {
		o.hiddenPrefix = prefix
	}
}

// WithAtomicWrites makes each file write go to a hidden temporary file in
// the same directory, which is synced and renamed over the target.
func WithAtomicWrites() Option {
	return func(o *options) {
		o.atomic = true
	}
}

// WithFileMode sets the permission bits for newly created files.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithCipher seals every file body with c. The entry key is bound as
// additional data, so a file renamed to another key fails to restore.
func WithCipher(c adaptive.Cipher) Option {
	return func(o *options) {
		o.cipher = c
	}
}

// WithLogger sets the logger for skip decisions and batch summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers an observer, typically a metrics collector.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveRestore(string, int, time.Duration, error) {}
func (nopObserver) ObserveStore(string, int, time.Duration, error)   {}
