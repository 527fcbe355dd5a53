package password

import (
	"errors"
	"strings"
)

// Verifier checks a plaintext secret against one stored hash format.
type Verifier interface {
	Verify(password string, encodedHash string) (bool, error)
}

// Hasher produces stored hashes for newly written credentials. Every Hasher
// in this package is also a Verifier for its own format.
type Hasher interface {
	Verifier
	Hash(password string) (string, error)
}

// ErrUnknownHashFormat is returned by Detect when no scheme claims the hash.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Detect selects the verifier for a stored hash by its prefix. The legacy
// salted-SHA1 scheme is included for backward compatibility with hashes
// migrated from the old source system.
func Detect(encodedHash string) (Verifier, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return detectArgon2{}, nil
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return detectBcrypt{}, nil
	case strings.HasPrefix(encodedHash, legacySHA1Prefix):
		return LegacySHA1{}, nil
	default:
		return nil, ErrUnknownHashFormat
	}
}

// detectArgon2 verifies against parameters parsed from the hash itself, so
// no configured Argon2 instance is needed on the verify path.
type detectArgon2 struct{}

func (detectArgon2) Verify(password, encodedHash string) (bool, error) {
	return verifyArgon2(password, encodedHash)
}

type detectBcrypt struct{}

func (detectBcrypt) Verify(password, encodedHash string) (bool, error) {
	return verifyBcrypt(password, encodedHash)
}
