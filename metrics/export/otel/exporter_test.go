package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/campusauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot campusauth.MetricsSnapshot
}

func (f *fakeSource) MetricsSnapshot() campusauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := campusauth.MetricsSnapshot{
		Counters:   make(map[campusauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[campusauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func newMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				return data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				return data.DataPoints[0].Value
			}
			t.Fatalf("metric %s has unexpected data type %T", name, m.Data)
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newMeter()

	src := &fakeSource{
		snapshot: campusauth.MetricsSnapshot{
			Counters: map[campusauth.MetricID]uint64{
				campusauth.MetricLoginSuccess: 3,
			},
			Histograms: map[campusauth.MetricID][]uint64{
				campusauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("campusauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := findSum(t, rm, "campusauth_login_success_total"); got != 3 {
		t.Fatalf("expected login success 3, got %d", got)
	}
	if got := findSum(t, rm, "campusauth_validate_latency_seconds_bucket_le_0_025"); got != 3 {
		t.Fatalf("expected cumulative bucket 3, got %d", got)
	}
	if got := findSum(t, rm, "campusauth_validate_latency_seconds_count"); got != 8 {
		t.Fatalf("expected count 8, got %d", got)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newMeter()

	if _, err := NewExporterFromSource(provider.Meter("campusauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(provider.Meter("campusauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter()

	src := &fakeSource{
		snapshot: campusauth.MetricsSnapshot{
			Counters: map[campusauth.MetricID]uint64{
				campusauth.MetricLoginSuccess: 1,
			},
			Histograms: map[campusauth.MetricID][]uint64{
				campusauth.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("campusauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[campusauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
