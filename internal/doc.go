// Package internal contains helper utilities that are intentionally private to campusauth,
// chiefly secure random session and refresh identifiers.
//
// # Sub-packages
//
//   - flows: pure-function flow orchestrators for every Engine operation
//   - rate: Redis-backed fixed-window limiter for login and refresh
//   - api: HTTP surface (chi router, envelope, middleware)
//   - store: SQLite credential store
//   - config: YAML + environment configuration for the daemon
//   - logging: slog construction
//
// # What this package must NOT do
//
//   - Export types that appear in the public campusauth API.
//   - Be imported by any package outside the campusauth module.
package internal
