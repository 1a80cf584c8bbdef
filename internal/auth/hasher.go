package auth

import "golang.org/x/crypto/bcrypt"

// BcryptHasher implements one-way password hashing. It is the only place
// plaintext passwords are touched.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher constructs a hasher; cost 0 falls back to the bcrypt default.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

// Hash derives a bcrypt hash from the plaintext.
func (h BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether the plaintext matches the stored hash.
func (h BcryptHasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}
