// Package memory keeps users and their refresh tokens in process memory.
// It backs development runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/riteshshukladev/wrapper/internal/domain"
	"github.com/riteshshukladev/wrapper/internal/repository"
	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
)

type record struct {
	user   domain.User
	tokens map[string]struct{}
}

// Store implements both repository.UserRepository and repository.TokenStore.
// The token set lives on the user record, as it does in postgres.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*record
	byEmail map[string]string
}

func NewStore() *Store {
	return &Store{
		byID:    make(map[string]*record),
		byEmail: make(map[string]string),
	}
}

func (s *Store) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("insert user %s: %w", u.Email, apperrors.ErrAlreadyExists)
	}
	if _, ok := s.byID[u.ID]; ok {
		return fmt.Errorf("insert user %s: %w", u.ID, apperrors.ErrAlreadyExists)
	}

	s.byID[u.ID] = &record{user: *u, tokens: make(map[string]struct{})}
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	u := rec.user
	return &u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(s.byEmail, rec.user.Email)
	delete(s.byID, id)
	return nil
}

func (s *Store) Add(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.tokens[repository.TokenDigest(token)] = struct{}{}
	return nil
}

func (s *Store) Remove(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	d := repository.TokenDigest(token)
	if _, ok := rec.tokens[d]; !ok {
		return apperrors.ErrNotFound
	}
	delete(rec.tokens, d)
	return nil
}

func (s *Store) Contains(_ context.Context, userID, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return false, nil
	}
	_, ok = rec.tokens[repository.TokenDigest(token)]
	return ok, nil
}

func (s *Store) Replace(_ context.Context, userID, prev, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	p := repository.TokenDigest(prev)
	if _, ok := rec.tokens[p]; !ok {
		return apperrors.ErrNotFound
	}
	rec.tokens[repository.TokenDigest(next)] = struct{}{}
	delete(rec.tokens, p)
	return nil
}

// TokenCount returns the size of the user's token set.
func (s *Store) TokenCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.byID[userID]; ok {
		return len(rec.tokens)
	}
	return 0
}
