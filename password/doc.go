// Package password hashes and verifies campusauth account passwords with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// Engine can re-hash on the next successful login. Length policy lives here too:
// [Argon2.Hash] rejects passwords outside [MinPasswordBytes, MaxPasswordBytes]
// with [ErrPasswordTooShort] or [ErrPasswordTooLong].
//
// The package never stores passwords and never logs plaintext or hash parameters.
package password
