// Package campusauth implements the session lifecycle of the campus
// management service: issuing access and refresh JWTs, verifying them,
// renewing access tokens, revoking sessions and gating on role.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// campusauth is the server-side public surface. It exposes [Engine],
// [Builder], [Config] and value types. Flow orchestration, Redis session
// records and rate limiting live under internal/ or in the session, jwt and
// password packages. The client package is the consumer-side counterpart and
// only talks to the HTTP API.
//
// # Token errors
//
// Every token rejection wraps [ErrUnauthorized]. [ErrMalformed], [ErrExpired]
// and [ErrRevoked] distinguish the cause for logging and metrics; the HTTP
// layer must not expose the difference to callers.
//
// # Performance contract
//
// Verify in ModeJWTOnly performs no Redis round trip. Refresh, Login and
// ModeStrict validation perform one or two.
package campusauth
