package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accessSecret  = "access-secret-for-tests-0123456789"
	refreshSecret = "refresh-secret-for-tests-987654321"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T, class Class, secret string, ttl time.Duration, clock *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(class, secret, ttl, WithIssuer("auth-service"), WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsBadConfig(t *testing.T) {
	_, err := NewCodec(ClassAccess, "", time.Minute)
	assert.Error(t, err)

	_, err = NewCodec(ClassAccess, accessSecret, 0)
	assert.Error(t, err)
}

func TestCodec_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, ClassAccess, accessSecret, 15*time.Minute, clock)

	token, err := c.Issue(Subject{ID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := c.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, ClassAccess, claims.Class)
	assert.Equal(t, "auth-service", claims.Issuer)
	assert.Equal(t, clock.now.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, Subject{ID: "user-1", Name: "Alice"}, claims.Subject())
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	ttl := 15 * time.Minute
	clock := &fakeClock{now: issued}
	c := newTestCodec(t, ClassAccess, accessSecret, ttl, clock)

	token, err := c.Issue(Subject{ID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	exp := issued.Add(ttl)

	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"one second before expiry", exp.Add(-time.Second), false},
		{"at expiry", exp, true},
		{"one second after expiry", exp.Add(time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.now = tt.at
			_, err := c.Verify(token)
			if tt.expired {
				assert.ErrorIs(t, err, ErrExpired)
				assert.NotErrorIs(t, err, ErrInvalidToken)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCodec_RejectsOtherSecret(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	a := newTestCodec(t, ClassAccess, accessSecret, time.Minute, clock)
	b := newTestCodec(t, ClassAccess, "a-completely-different-secret-value", time.Minute, clock)

	token, err := a.Issue(Subject{ID: "user-1"})
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_ClassesDoNotCrossVerify(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	access := newTestCodec(t, ClassAccess, accessSecret, time.Minute, clock)
	refresh := newTestCodec(t, ClassRefresh, refreshSecret, time.Hour, clock)

	at, err := access.Issue(Subject{ID: "user-1"})
	require.NoError(t, err)
	rt, err := refresh.Issue(Subject{ID: "user-1"})
	require.NoError(t, err)

	_, err = refresh.Verify(at)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = access.Verify(rt)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Same secret, different class claim.
	sameSecret := newTestCodec(t, ClassRefresh, accessSecret, time.Hour, clock)
	_, err = sameSecret.Verify(at)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_RejectsWrongIssuer(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newTestCodec(t, ClassAccess, accessSecret, time.Minute, clock)
	other, err := NewCodec(ClassAccess, accessSecret, time.Minute, WithIssuer("someone-else"), WithClock(clock.Now))
	require.NoError(t, err)

	token, err := other.Issue(Subject{ID: "user-1"})
	require.NoError(t, err)

	_, err = c.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_RejectsNoneAlgorithm(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newTestCodec(t, ClassAccess, accessSecret, time.Minute, clock)

	claims := &Claims{
		UserID: "user-1",
		Class:  ClassAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-service",
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_RejectsGarbage(t *testing.T) {
	c := newTestCodec(t, ClassAccess, accessSecret, time.Minute, &fakeClock{now: time.Now()})
	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := c.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestCodec_DeterministicWithFixedIDAndClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := NewCodec(ClassRefresh, refreshSecret, time.Hour,
		WithClock(clock.Now), WithIDGenerator(func() string { return "fixed" }))
	require.NoError(t, err)

	a, err := c.Issue(Subject{ID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	b, err := c.Issue(Subject{ID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCodec_DistinctTokensInSameSecond(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, ClassRefresh, refreshSecret, time.Hour, clock)

	a, err := c.Issue(Subject{ID: "user-1"})
	require.NoError(t, err)
	b, err := c.Issue(Subject{ID: "user-1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIssuer(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	access := newTestCodec(t, ClassAccess, accessSecret, time.Minute, clock)
	refresh := newTestCodec(t, ClassRefresh, refreshSecret, time.Hour, clock)

	_, err := NewIssuer(refresh, access)
	assert.Error(t, err)

	sameSecret := newTestCodec(t, ClassRefresh, accessSecret, time.Hour, clock)
	_, err = NewIssuer(access, sameSecret)
	assert.Error(t, err)

	issuer, err := NewIssuer(access, refresh)
	require.NoError(t, err)

	pair, err := issuer.IssuePair(Subject{ID: "user-1", Name: "Alice"})
	require.NoError(t, err)

	_, err = access.Verify(pair.AccessToken)
	assert.NoError(t, err)
	_, err = refresh.Verify(pair.RefreshToken)
	assert.NoError(t, err)
}
