package password

import (
	"crypto/sha1" //nolint:gosec // verify-only support for a legacy hash format
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const (
	legacySHA1Prefix   = "{SSHA}"
	legacySHA1HashSize = 20
)

// LegacySHA1 verifies the deprecated salted-SHA1 format written by a legacy
// source system: {SSHA}base64(sha1(plain+salt) + salt). Verify-only; this
// package never produces new hashes in this format.
type LegacySHA1 struct{}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (LegacySHA1) Verify(password string, encodedHash string) (bool, error) {
	if len(encodedHash) <= len(legacySHA1Prefix) || encodedHash[:len(legacySHA1Prefix)] != legacySHA1Prefix {
		return false, errors.New("invalid legacy hash format")
	}

	raw, err := base64.StdEncoding.DecodeString(encodedHash[len(legacySHA1Prefix):])
	if err != nil {
		return false, errors.New("invalid legacy hash encoding")
	}
	if len(raw) <= legacySHA1HashSize {
		return false, errors.New("invalid legacy hash length")
	}

	stored := raw[:legacySHA1HashSize]
	salt := raw[legacySHA1HashSize:]

	h := sha1.New() //nolint:gosec
	h.Write([]byte(password))
	h.Write(salt)
	computed := h.Sum(nil)

	return subtle.ConstantTimeCompare(computed, stored) == 1, nil
}
