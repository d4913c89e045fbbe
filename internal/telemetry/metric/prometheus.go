package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/dirstore-go/pkg/dirstore"
)

const namespace = "dirstore"

const (
	resultOK    = "ok"
	resultError = "error"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	Restores        *prometheus.CounterVec
	Stores          *prometheus.CounterVec
	EntriesRestored prometheus.Counter
	EntriesStored   prometheus.Counter
	Duration        *prometheus.HistogramVec
	Entries         prometheus.Gauge
}

var _ dirstore.Observer = (*Registry)(nil)

// NewRegistry creates a registry with dirstore metrics plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Directory restores by result.",
		}, []string{"result"}),
		Stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stores_total",
			Help:      "Store and single-entry store calls by result.",
		}, []string{"result"}),
		EntriesRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_restored_total",
			Help:      "Entries read by successful restores.",
		}),
		EntriesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_stored_total",
			Help:      "Entries written to disk.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of restore and store calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Entries held after the most recent successful restore.",
		}),
	}

	r.reg.MustRegister(
		r.Restores,
		r.Stores,
		r.EntriesRestored,
		r.EntriesStored,
		r.Duration,
		r.Entries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRestore implements dirstore.Observer.
func (r *Registry) ObserveRestore(_ string, entries int, elapsed time.Duration, err error) {
	r.Duration.WithLabelValues("restore").Observe(elapsed.Seconds())
	if err != nil {
		r.Restores.WithLabelValues(resultError).Inc()
		return
	}
	r.Restores.WithLabelValues(resultOK).Inc()
	r.EntriesRestored.Add(float64(entries))
	r.Entries.Set(float64(entries))
}

// ObserveStore implements dirstore.Observer.
func (r *Registry) ObserveStore(_ string, entries int, elapsed time.Duration, err error) {
	r.Duration.WithLabelValues("store").Observe(elapsed.Seconds())
	r.EntriesStored.Add(float64(entries))
	if err != nil {
		r.Stores.WithLabelValues(resultError).Inc()
		return
	}
	r.Stores.WithLabelValues(resultOK).Inc()
}

// Gatherer returns the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
