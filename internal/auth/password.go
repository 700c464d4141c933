package auth

import "golang.org/x/crypto/bcrypt"

const defaultBcryptCost = 12

// Hasher hashes and verifies passwords with bcrypt. The work factor is
// deliberately high; callers must treat Hash as CPU-bound.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher. A zero cost falls back to the production
// work factor of 12.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = defaultBcryptCost
	}
	return Hasher{cost: cost}
}

// Hash derives a salted digest from the plaintext. The plaintext is never
// persisted or logged.
func (h Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the digest. A mismatch is a
// boolean outcome consumed by the lockout policy, not an error.
func (h Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
