// Package password implements credential hashing and per-scheme verification.
//
// # Supported schemes
//
// New hashes are written as bcrypt or Argon2id (PHC string format):
//
//	$2a$10$...
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification additionally accepts the deprecated salted-SHA1 format
// ({SSHA}base64(sha1(plain+salt)+salt)) written by a legacy source system.
// That scheme is verify-only; [Detect] returns it so stored legacy hashes
// keep working, but nothing in this package will ever produce one.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// reuse history) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
