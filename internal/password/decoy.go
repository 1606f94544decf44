package password

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
)

// Decoy burns one hash comparison for an identity that does not exist, so an
// unknown email and a wrong password cost about the same.
type Decoy struct {
	hasher Hasher
	once   sync.Once
	hash   string
}

func NewDecoy(h Hasher) *Decoy {
	return &Decoy{hasher: h}
}

// Check compares password against a hash of a random secret. It always
// reports false.
func (d *Decoy) Check(password string) {
	d.once.Do(func() {
		buf := make([]byte, 18)
		_, _ = rand.Read(buf)
		d.hash, _ = d.hasher.Hash(base64.RawStdEncoding.EncodeToString(buf))
	})
	if d.hash == "" {
		return
	}
	_, _ = d.hasher.Check(password, d.hash)
}
