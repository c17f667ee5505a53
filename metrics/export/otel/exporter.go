package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() campusauth.MetricsSnapshot
}

// reading pulls one value out of a snapshot for one instrument.
type reading struct {
	instrument metric.Int64Observable
	value      func(campusauth.MetricsSnapshot) uint64
}

// Exporter publishes engine counters through observable OTel instruments.
// Histogram buckets are flattened into one cumulative gauge per bound plus a
// count gauge.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	readings     []reading
}

// NewExporter registers instruments on meter that read engine.
func NewExporter(meter metric.Meter, engine *campusauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments on meter that read source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel counter %s: %w", def.Name, err)
		}
		id := def.ID
		e.readings = append(e.readings, reading{ins, func(s campusauth.MetricsSnapshot) uint64 { return s.Counters[id] }})
	}

	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		cumulative := func(s campusauth.MetricsSnapshot) [8]uint64 {
			return internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(s.Histograms[id]))
		}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			if err := e.gauge(meter, def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.", func(s campusauth.MetricsSnapshot) uint64 {
				return cumulative(s)[i]
			}); err != nil {
				return nil, err
			}
		}
		if err := e.gauge(meter, def.Name+"_count", "Histogram total sample count.", func(s campusauth.MetricsSnapshot) uint64 {
			c := cumulative(s)
			return c[len(c)-1]
		}); err != nil {
			return nil, err
		}
	}

	observables := make([]metric.Observable, len(e.readings))
	for i, r := range e.readings {
		observables[i] = r.instrument
	}
	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) gauge(meter metric.Meter, name, help string, value func(campusauth.MetricsSnapshot) uint64) error {
	ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		return fmt.Errorf("otel gauge %s: %w", name, err)
	}
	e.readings = append(e.readings, reading{ins, value})
	return nil
}

// observe takes one snapshot per collection so every instrument reports the
// same instant.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, r := range e.readings {
		o.ObserveInt64(r.instrument, int64(r.value(snap)))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
