package fswatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	DefaultDebounce     = 200 * time.Millisecond
	DefaultHiddenPrefix = "."
)

// Handler receives the sorted, de-duplicated keys changed since the last call.
type Handler func(ctx context.Context, keys []string)

// Watcher watches a single directory, non-recursively.
type Watcher struct {
	dir          string
	hiddenPrefix string
	debounce     time.Duration
	limiter      *rate.Limiter
	logger       *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the quiet period before pending changes are delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithHiddenPrefix sets the prefix of names to ignore. Empty disables filtering.
func WithHiddenPrefix(prefix string) Option {
	return func(w *Watcher) {
		w.hiddenPrefix = prefix
	}
}

// WithRateLimit caps deliveries to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(w *Watcher) {
		w.limiter = rate.NewLimiter(r, burst)
	}
}

// New creates a watcher for dir. Nothing is watched until Run.
func New(dir string, opts ...Option) *Watcher {
	w := &Watcher{
		dir:          dir,
		hiddenPrefix: DefaultHiddenPrefix,
		debounce:     DefaultDebounce,
		limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnChange registers a handler. Handlers run sequentially on the Run goroutine.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fswatch: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("fswatch: watch %s: %w", w.dir, err)
	}

	w.logger.Info("directory watcher started", "dir", w.dir)
	defer w.logger.Info("directory watcher stopped", "dir", w.dir)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			key, relevant := w.keyOf(event)
			if !relevant {
				continue
			}
			w.logger.Debug("entry changed", "key", key, "op", event.Op.String())
			pending[key] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			keys := make([]string, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			clear(pending)
			w.notify(ctx, keys)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("directory watcher error", "dir", w.dir, "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// keyOf maps an event to an entry key, skipping hidden names and chmod-only events.
func (w *Watcher) keyOf(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	key := filepath.Base(event.Name)
	if w.hiddenPrefix != "" && strings.HasPrefix(key, w.hiddenPrefix) {
		return "", false
	}
	return key, true
}

func (w *Watcher) notify(ctx context.Context, keys []string) {
	w.mu.RLock()
	handlers := slices.Clone(w.handlers)
	w.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, keys)
	}
}
