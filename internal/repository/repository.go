package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/riteshshukladev/wrapper/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user. It returns apperrors.ErrAlreadyExists when
	// the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Delete removes a user and their refresh tokens. It returns
	// apperrors.ErrNotFound when there is no such user.
	Delete(ctx context.Context, id string) error
}

// TokenStore holds the set of refresh tokens currently valid for each user.
// Implementations return apperrors.ErrNotFound from Remove and Replace when
// the token is not in the set.
type TokenStore interface {
	// Add puts token into the user's set.
	Add(ctx context.Context, userID, token string) error

	// Remove takes token out of the user's set.
	Remove(ctx context.Context, userID, token string) error

	// Contains reports whether token is in the user's set.
	Contains(ctx context.Context, userID, token string) (bool, error)

	// Replace adds next and removes prev as a single atomic step, and only if
	// prev is still in the set. Of two concurrent calls with the same prev
	// exactly one succeeds.
	Replace(ctx context.Context, userID, prev, next string) error
}

// TokenDigest is the form a refresh token is stored in.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
