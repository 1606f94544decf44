package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riteshshukladev/wrapper/internal/repository"
	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
)

const keyPrefix = "refresh_tokens:"

// replaceScript adds the new digest before removing the old one and does
// nothing when the old digest is already gone.
const replaceScript = `
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('SADD', KEYS[1], ARGV[2])
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

var replaceLua = redis.NewScript(replaceScript)

// TokenStore implements repository.TokenStore with one Redis set per user.
// The set expires ttl after its last write, so an idle user's tokens go
// away together with their cryptographic validity.
type TokenStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewTokenStore creates a new Redis-backed token store.
func NewTokenStore(client redis.UniversalClient, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

func key(userID string) string {
	return keyPrefix + userID
}

func (s *TokenStore) Add(ctx context.Context, userID, token string) error {
	k := key(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, k, repository.TokenDigest(token))
		pipe.PExpire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add refresh token: %w", err)
	}
	return nil
}

func (s *TokenStore) Remove(ctx context.Context, userID, token string) error {
	n, err := s.client.SRem(ctx, key(userID), repository.TokenDigest(token)).Result()
	if err != nil {
		return fmt.Errorf("redis remove refresh token: %w", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *TokenStore) Contains(ctx context.Context, userID, token string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key(userID), repository.TokenDigest(token)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check refresh token: %w", err)
	}
	return ok, nil
}

func (s *TokenStore) Replace(ctx context.Context, userID, prev, next string) error {
	n, err := replaceLua.Run(ctx, s.client,
		[]string{key(userID)},
		repository.TokenDigest(prev),
		repository.TokenDigest(next),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis replace refresh token: %w", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
