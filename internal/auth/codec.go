package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class partitions tokens. Each class is signed with its own secret.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, wrong class and
	// wrong issuer.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired is returned once the current time reaches the token's expiry.
	ErrExpired = errors.New("token expired")
)

// Subject is the identity a token is issued for.
type Subject struct {
	ID   string
	Name string
}

// Claims is the token payload.
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Class  Class  `json:"typ"`
	jwt.RegisteredClaims
}

// Subject returns the identity carried by the claims.
func (c *Claims) Subject() Subject {
	return Subject{ID: c.UserID, Name: c.Name}
}

// Codec issues and verifies HS256 tokens of a single class.
type Codec struct {
	class  Class
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	newID  func() string
}

type Option func(*Codec)

// WithIssuer sets the iss claim written and required by the codec.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock replaces time.Now for both issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIDGenerator replaces the jti generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Codec) { c.newID = fn }
}

// NewCodec creates a codec for class.
func NewCodec(class Class, secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%s token secret is empty", class)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s token ttl must be positive", class)
	}

	c := &Codec{
		class:  class,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) Class() Class        { return c.class }
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for s expiring ttl from now.
func (c *Codec) Issue(s Subject) (string, error) {
	now := c.now()
	claims := &Claims{
		UserID: s.ID,
		Name:   s.Name,
		Class:  c.class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.newID(),
			Subject:   s.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", c.class, err)
	}
	return signed, nil
}

// Verify checks signature, expiry, issuer and class. It fails with
// ErrExpired exactly when now >= exp, and with ErrInvalidToken otherwise.
func (c *Codec) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("parse %s token: %w", c.class, ErrExpired)
		}
		return nil, fmt.Errorf("parse %s token: %w: %v", c.class, ErrInvalidToken, err)
	}

	if !parsed.Valid || claims.Class != c.class || claims.UserID == "" {
		return nil, fmt.Errorf("parse %s token: %w", c.class, ErrInvalidToken)
	}
	return claims, nil
}
