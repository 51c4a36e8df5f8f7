package utils

import "golang.org/x/crypto/bcrypt"

// HashSecret returns a bcrypt hash of a one-time secret such as a link nonce.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckSecret compares a bcrypt hash with its possible plaintext equivalent.
func CheckSecret(hashed, secret string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}
