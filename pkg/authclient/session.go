package authclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token fields the client reads. The client never
// holds the signing secret, so they are decoded without verification.
type Claims struct {
	ID        string
	Name      string
	ExpiresAt time.Time
}

// Session is the cached client state. The zero value means logged out.
type Session struct {
	AccessToken  string
	RefreshToken string
	// User is the decoded access token and is nil exactly when AccessToken is empty.
	User *Claims
}

// LoggedIn reports whether the session holds an access token.
func (s Session) LoggedIn() bool {
	return s.AccessToken != ""
}

// User is the profile returned by the user data endpoint.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type tokenClaims struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// DecodeClaims reads the payload of an access token without checking its
// signature.
func DecodeClaims(token string) (*Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}
	if tc.ID == "" {
		return nil, errors.New("decode access token: missing subject id")
	}
	if tc.ExpiresAt == nil {
		return nil, errors.New("decode access token: missing expiry")
	}
	return &Claims{ID: tc.ID, Name: tc.Name, ExpiresAt: tc.ExpiresAt.Time}, nil
}

func newSession(access, refresh string) (Session, error) {
	claims, err := DecodeClaims(access)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, RefreshToken: refresh, User: claims}, nil
}
