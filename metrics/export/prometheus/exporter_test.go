package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/campusauth"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot campusauth.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() campusauth.MetricsSnapshot { return f.snapshot }

func populated() fakeSource {
	return fakeSource{snapshot: campusauth.MetricsSnapshot{
		Counters: map[campusauth.MetricID]uint64{
			campusauth.MetricLoginSuccess: 7,
		},
		Histograms: map[campusauth.MetricID][]uint64{
			campusauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}}
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: campusauth.MetricsSnapshot{
		Counters:   map[campusauth.MetricID]uint64{},
		Histograms: map[campusauth.MetricID][]uint64{},
	}})

	if n := testutil.CollectAndCount(exp); n != 0 {
		t.Fatalf("expected no samples for disabled metrics, got %d", n)
	}
}

func TestCollectCountsEveryDefinition(t *testing.T) {
	exp := NewExporterFromSource(populated())
	if n := testutil.CollectAndCount(exp); n != 17 {
		t.Fatalf("expected 16 counters and 1 histogram, got %d", n)
	}
}

func TestCollectCounterAndCumulativeHistogram(t *testing.T) {
	exp := NewExporterFromSource(populated())

	want := `
# HELP campusauth_login_success_total Successful login attempts.
# TYPE campusauth_login_success_total counter
campusauth_login_success_total 7
# HELP campusauth_validate_latency_seconds Access token validation latency.
# TYPE campusauth_validate_latency_seconds histogram
campusauth_validate_latency_seconds_bucket{le="0.005"} 1
campusauth_validate_latency_seconds_bucket{le="0.01"} 3
campusauth_validate_latency_seconds_bucket{le="0.025"} 6
campusauth_validate_latency_seconds_bucket{le="0.05"} 10
campusauth_validate_latency_seconds_bucket{le="0.1"} 15
campusauth_validate_latency_seconds_bucket{le="0.25"} 21
campusauth_validate_latency_seconds_bucket{le="0.5"} 28
campusauth_validate_latency_seconds_bucket{le="+Inf"} 36
campusauth_validate_latency_seconds_sum 0
campusauth_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(want),
		"campusauth_login_success_total", "campusauth_validate_latency_seconds")
	if err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	srv := httptest.NewServer(NewExporterFromSource(populated()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "campusauth_login_success_total 7") {
		t.Fatalf("expected login counter in scrape, got:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("expected runtime collectors in scrape")
	}
}
