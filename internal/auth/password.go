package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns a salted bcrypt hash of p. Two calls with the same
// input produce different hashes.
func HashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

// VerifyPassword reports whether p matches hash. A malformed hash is a mismatch.
func VerifyPassword(p, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}
