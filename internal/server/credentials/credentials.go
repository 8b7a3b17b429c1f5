// Package credentials hashes and verifies account passwords with bcrypt
// and holds the password strength rule applied at registration and reset.
package credentials

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost keeps a single comparison in the tens of milliseconds.
const DefaultCost = 12

// maxInput is the number of bytes bcrypt actually uses. Longer inputs are
// truncated the same way other bcrypt implementations do so existing
// hashes keep verifying.
const maxInput = 72

// Hasher hashes and compares passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hash string) bool
	// CompareDummy spends the same work as Compare against a fixed hash.
	// Used when the account does not exist so timing does not reveal it.
	CompareDummy(plain string)
}

// BcryptHasher implements Hasher with golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(input(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), input(plain)) == nil
}

func (h *BcryptHasher) CompareDummy(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("cardflow-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, input(plain))
}

func input(plain string) []byte {
	b := []byte(plain)
	if len(b) > maxInput {
		b = b[:maxInput]
	}
	return b
}
