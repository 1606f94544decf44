// Package password hashes and checks user passwords.
package password

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHash is returned by Check when the stored hash cannot be parsed.
	// A mismatching password is not an error.
	ErrMalformedHash = errors.New("malformed password hash")

	// ErrTooLong is returned by Hash for passwords over MaxBcryptLength bytes
	// when the hasher is bcrypt.
	ErrTooLong = errors.New("password too long")
)

// MaxBcryptLength is the number of password bytes bcrypt consumes.
const MaxBcryptLength = 72

// Hasher hashes passwords with a fresh salt per call and checks candidates
// against a stored hash.
type Hasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) (bool, error)
}

const (
	KindBcrypt   = "bcrypt"
	KindArgon2id = "argon2id"
)

// Config selects and tunes a Hasher.
type Config struct {
	Kind       string
	BcryptCost int
	Argon2     Argon2Config
}

// New returns the Hasher named by cfg.Kind.
func New(cfg Config) (Hasher, error) {
	switch cfg.Kind {
	case KindBcrypt, "":
		return NewBcrypt(cfg.BcryptCost)
	case KindArgon2id:
		return NewArgon2(cfg.Argon2)
	default:
		return nil, fmt.Errorf("unknown password hasher %q", cfg.Kind)
	}
}
