// Package rate implements the Redis fixed-window counters that throttle
// campusauth logins and refreshes.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys under the configured
// prefix:
//   - <prefix>:l:<email>  login failures per account
//   - <prefix>:li:<ip>    login failures per client IP
//   - <prefix>:r:<sid>    refresh attempts per session
package rate
