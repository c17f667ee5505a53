// Package middleware exposes net/http adapters that enforce campusauth
// access tokens and roles.
//
// # Guards
//
//   - [Guard] validates with an explicit route mode, or ModeInherit for the engine default.
//   - [RequireJWTOnly] verifies signature and expiry only. No Redis call.
//   - [RequireStrict] also requires the session record to exist.
//   - [RequireRole] gates on the verified token's role and must follow a guard.
//
// Each guard reads the Authorization header, calls Validate, and stores the
// [campusauth.AuthResult] in the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the engine).
//   - Reveal why a token was rejected. Every 401 body is byte-identical.
package middleware
