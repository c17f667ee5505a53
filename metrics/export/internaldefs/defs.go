package internaldefs

import (
	"github.com/MrEthical07/campusauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   campusauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   campusauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: campusauth.MetricLoginSuccess, Name: "campusauth_login_success_total", Help: "Successful login attempts."},
	{ID: campusauth.MetricLoginFailure, Name: "campusauth_login_failure_total", Help: "Failed login attempts."},
	{ID: campusauth.MetricLoginRateLimited, Name: "campusauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: campusauth.MetricRefreshSuccess, Name: "campusauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: campusauth.MetricRefreshFailure, Name: "campusauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: campusauth.MetricRefreshReuseDetected, Name: "campusauth_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: campusauth.MetricReplayDetected, Name: "campusauth_replay_detected_total", Help: "Detected replay attempts."},
	{ID: campusauth.MetricRefreshRateLimited, Name: "campusauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: campusauth.MetricSessionCreated, Name: "campusauth_session_created_total", Help: "Created sessions."},
	{ID: campusauth.MetricSessionCreateFailure, Name: "campusauth_session_create_failure_total", Help: "Sessions that could not be persisted or signed."},
	{ID: campusauth.MetricLogout, Name: "campusauth_logout_total", Help: "Logout operations."},
	{ID: campusauth.MetricVerifySuccess, Name: "campusauth_verify_success_total", Help: "Access tokens accepted."},
	{ID: campusauth.MetricVerifyRejected, Name: "campusauth_verify_rejected_total", Help: "Access tokens rejected."},
	{ID: campusauth.MetricAccountCreationSuccess, Name: "campusauth_account_creation_success_total", Help: "Successful registrations."},
	{ID: campusauth.MetricAccountCreationDuplicate, Name: "campusauth_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: campusauth.MetricAccountCreationInvalid, Name: "campusauth_account_creation_invalid_total", Help: "Registrations rejected by validation."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: campusauth.MetricValidateLatency, Name: "campusauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramUpperBounds are the bucket upper bounds in seconds. The last
// engine bucket is the +Inf overflow and has no entry here.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, including +Inf, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
