// Package jwt mints and verifies the two campusauth token kinds.
//
// Access and refresh tokens share one claim layout but carry distinct
// audiences, distinct typ headers and, under HS256, distinct HKDF-derived
// keys. Parse errors collapse to [ErrTokenMalformed] or [ErrTokenExpired];
// a token is only reported expired once its signature has verified.
package jwt
