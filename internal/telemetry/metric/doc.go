// Package metric provides Prometheus metrics for dirstore.
//
// A Registry observes directory restores and stores (it implements
// dirstore.Observer) and exposes:
//
//   - dirstore_restores_total{result}
//   - dirstore_stores_total{result}
//   - dirstore_entries_restored_total
//   - dirstore_entries_stored_total
//   - dirstore_operation_duration_seconds{op}
//   - dirstore_entries
//
// Handler serves the registry in Prometheus text format.
package metric
