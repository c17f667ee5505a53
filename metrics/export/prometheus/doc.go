// Package prometheus exposes campusauth engine counters as a Prometheus
// collector.
//
// [NewExporter] returns a [prometheus.Collector]; callers either register it
// on their own registry or mount [Exporter.Handler]. Counter names are
// campusauth_*_total and the single histogram is
// campusauth_validate_latency_seconds.
package prometheus
