package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1}
}

func hashers(t *testing.T) map[string]Hasher {
	t.Helper()
	b, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	a, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)
	return map[string]Hasher{KindBcrypt: b, KindArgon2id: a}
}

func TestHasher_RoundTrip(t *testing.T) {
	for name, h := range hashers(t) {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash("secret1")
			require.NoError(t, err)
			assert.NotContains(t, hash, "secret1")

			ok, err := h.Check("secret1", hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Check("wrong", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_FreshSaltPerCall(t *testing.T) {
	for name, h := range hashers(t) {
		t.Run(name, func(t *testing.T) {
			a, err := h.Hash("same-password")
			require.NoError(t, err)
			b, err := h.Hash("same-password")
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestHasher_MalformedHash(t *testing.T) {
	for name, h := range hashers(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := h.Check("secret1", "not-a-hash")
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrMalformedHash)
		})
	}
}

func TestArgon2_PHCFormat(t *testing.T) {
	h, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)
	assert.Len(t, strings.Split(hash, "$"), 6)
}

func TestArgon2_ChecksHashWithOlderParameters(t *testing.T) {
	old, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)
	hash, err := old.Hash("secret1")
	require.NoError(t, err)

	cfg := testArgon2Config()
	cfg.Time = 2
	current, err := NewArgon2(cfg)
	require.NoError(t, err)

	ok, err := current.Check("secret1", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2_RejectsTamperedHashes(t *testing.T) {
	h, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)

	tests := []string{
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA==$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA==$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA==$a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA==$a2V5",
		"$argon2id$v=19$m=8192,t=1,x=1$c2FsdHNhbHRzYWx0c2FsdA==$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ=$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA==$!!!",
	}
	for _, hash := range tests {
		_, err := h.Check("secret1", hash)
		assert.ErrorIs(t, err, ErrMalformedHash, hash)
	}
}

func TestNewArgon2_ValidatesConfig(t *testing.T) {
	_, err := NewArgon2(Argon2Config{MemoryKB: 1024, Time: 1, Parallelism: 1})
	assert.Error(t, err)
	_, err = NewArgon2(Argon2Config{MemoryKB: 8192, Time: 0, Parallelism: 1})
	assert.Error(t, err)
	_, err = NewArgon2(Argon2Config{MemoryKB: 8192, Time: 1, Parallelism: 0})
	assert.Error(t, err)
	_, err = NewArgon2(Argon2Config{MemoryKB: 8192, Time: 1, Parallelism: 1, SaltLength: 8})
	assert.Error(t, err)
}

func TestNewBcrypt_ValidatesCost(t *testing.T) {
	_, err := NewBcrypt(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	b, err := NewBcrypt(0)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, b.cost)
}

func TestBcrypt_ByteLimit(t *testing.T) {
	b, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	// 72 bytes in 36 runes
	atLimit := strings.Repeat("é", 36)
	hash, err := b.Hash(atLimit)
	require.NoError(t, err)
	ok, err := b.Check(atLimit, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.Hash(strings.Repeat("é", 40))
	assert.ErrorIs(t, err, ErrTooLong)

	ok, err = b.Check(atLimit+"x", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_SelectsHasher(t *testing.T) {
	h, err := New(Config{Kind: KindBcrypt, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.IsType(t, &Bcrypt{}, h)

	h, err = New(Config{Kind: KindArgon2id, Argon2: testArgon2Config()})
	require.NoError(t, err)
	assert.IsType(t, &Argon2{}, h)

	_, err = New(Config{Kind: "md5"})
	assert.Error(t, err)
}

type countingHasher struct {
	Hasher
	checks int
}

func (c *countingHasher) Check(password, hash string) (bool, error) {
	c.checks++
	return c.Hasher.Check(password, hash)
}

func TestDecoy_SpendsOneCheck(t *testing.T) {
	b, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	h := &countingHasher{Hasher: b}

	d := NewDecoy(h)
	d.Check("anything")
	d.Check("anything-else")
	assert.Equal(t, 2, h.checks)
}
