package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier checks a login password against the stored hash.
type PasswordVerifier interface {
	Compare(hashedPassword, password string) error
}

// BcryptVerifier verifies bcrypt hashes as written by the user store.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare returns ErrInvalidCredentials on a mismatch and the bcrypt error
// for malformed hashes.
func (*BcryptVerifier) Compare(hashedPassword, password string) error {
	switch err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return err
	}
}
