package postgres

import (
	"context"
	"fmt"

	"github.com/riteshshukladev/wrapper/internal/repository"
	"github.com/riteshshukladev/wrapper/pkg/database"
	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
)

// TokenStore keeps refresh token digests in the refresh_tokens array column
// of the users table. Every mutation is a single UPDATE, so concurrent
// writers for one user serialize on the row lock.
type TokenStore struct {
	db database.DBTX
}

// NewTokenStore creates a new PostgreSQL-backed token store.
func NewTokenStore(db database.DBTX) *TokenStore {
	return &TokenStore{db: db}
}

// Add appends the token digest, keeping the set free of duplicates.
func (s *TokenStore) Add(ctx context.Context, userID, token string) error {
	query := `
		UPDATE users
		SET refresh_tokens = array_append(array_remove(refresh_tokens, $2), $2), updated_at = NOW()
		WHERE id = $1`

	ct, err := s.db.Exec(ctx, query, userID, repository.TokenDigest(token))
	if err != nil {
		return fmt.Errorf("add refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Remove drops the token digest. It returns ErrNotFound if it was not stored.
func (s *TokenStore) Remove(ctx context.Context, userID, token string) error {
	query := `
		UPDATE users
		SET refresh_tokens = array_remove(refresh_tokens, $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(refresh_tokens)`

	ct, err := s.db.Exec(ctx, query, userID, repository.TokenDigest(token))
	if err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Contains reports whether the token digest is stored for the user.
func (s *TokenStore) Contains(ctx context.Context, userID, token string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND $2 = ANY(refresh_tokens))`

	var ok bool
	if err := s.db.QueryRow(ctx, query, userID, repository.TokenDigest(token)).Scan(&ok); err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

// Replace appends next and removes prev in one conditional UPDATE. If prev
// was already rotated out the WHERE clause matches nothing and ErrNotFound
// is returned.
func (s *TokenStore) Replace(ctx context.Context, userID, prev, next string) error {
	query := `
		UPDATE users
		SET refresh_tokens = array_remove(array_append(refresh_tokens, $3), $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(refresh_tokens)`

	ct, err := s.db.Exec(ctx, query, userID, repository.TokenDigest(prev), repository.TokenDigest(next))
	if err != nil {
		return fmt.Errorf("replace refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
