// Package session persists campusauth login sessions in Redis.
//
// # Binary encoding
//
// Each session is one Redis string holding the layout written by [Encode]: a
// fixed header (version, expiry, creation time, refresh hash) followed by
// length-prefixed strings. The rotation script reads the header at fixed
// offsets, so any layout change bumps the version byte.
//
// # Refresh rotation
//
// [Store.RotateRefreshHash] swaps the stored refresh hash with a Lua
// compare-and-set. A caller presenting a stale hash loses the race, and when
// revocation on reuse is requested the whole session is deleted.
//
// The package does not parse tokens or make authorization decisions.
package session
