// Package otel binds campusauth engine counters to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [campusauth.Engine.MetricsSnapshot] on each collection cycle. Callers own
// the MeterProvider.
package otel
