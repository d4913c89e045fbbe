package metric

import (
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/dirstore-go/pkg/dirstore"
	"github.com/yndnr/dirstore-go/pkg/storable"
)

func TestRegistry_ObserveRestore(t *testing.T) {
	r := NewRegistry()

	r.ObserveRestore("/d", 4, time.Millisecond, nil)
	r.ObserveRestore("/d", 0, time.Millisecond, errors.New("corrupt"))

	if got := testutil.ToFloat64(r.Restores.WithLabelValues(resultOK)); got != 1 {
		t.Errorf("restores{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Restores.WithLabelValues(resultError)); got != 1 {
		t.Errorf("restores{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.EntriesRestored); got != 4 {
		t.Errorf("entries_restored = %v, want 4", got)
	}
	if got := testutil.ToFloat64(r.Entries); got != 4 {
		t.Errorf("entries gauge = %v, want 4 (failed restore must not reset it)", got)
	}
}

func TestRegistry_ObserveStore(t *testing.T) {
	r := NewRegistry()

	r.ObserveStore("/d", 3, time.Millisecond, nil)
	r.ObserveStore("/d", 1, time.Millisecond, errors.New("disk full"))

	if got := testutil.ToFloat64(r.Stores.WithLabelValues(resultOK)); got != 1 {
		t.Errorf("stores{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Stores.WithLabelValues(resultError)); got != 1 {
		t.Errorf("stores{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.EntriesStored); got != 4 {
		t.Errorf("entries_stored = %v, want 4 (partial progress counts)", got)
	}
}

func TestRegistry_WiredIntoStorage(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()

	s := dirstore.New[storable.Uint32](map[string]storable.Uint32{"a": 1, "b": 2}, dirstore.WithObserver(r))
	if err := s.Store(dir); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := dirstore.Restore[storable.Uint32](dir, dirstore.WithObserver(r)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := dirstore.Restore[storable.Uint32](filepath.Join(dir, "a"), dirstore.WithObserver(r)); err != nil {
		t.Fatalf("Restore(file): %v", err)
	}

	if got := testutil.ToFloat64(r.EntriesStored); got != 2 {
		t.Errorf("entries_stored = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.Restores.WithLabelValues(resultOK)); got != 2 {
		t.Errorf("restores{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.Entries); got != 0 {
		t.Errorf("entries gauge = %v, want 0 after restoring a non-directory", got)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveRestore("/d", 2, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`dirstore_restores_total{result="ok"} 1`,
		"dirstore_entries 2",
		"dirstore_operation_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRegistry_Lint(t *testing.T) {
	r := NewRegistry()
	problems, err := testutil.GatherAndLint(r.Gatherer())
	if err != nil {
		t.Fatalf("GatherAndLint: %v", err)
	}
	for _, p := range problems {
		if strings.HasPrefix(p.Metric, "dirstore_") {
			t.Errorf("lint %s: %s", p.Metric, p.Text)
		}
	}
}
