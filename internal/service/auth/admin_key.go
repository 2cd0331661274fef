package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyVerifier checks a presented admin key against the configured
// bcrypt hash.
type AdminKeyVerifier struct {
	hash []byte
}

// NewAdminKeyVerifier creates a verifier for the given bcrypt hash. The hash
// is checked for well-formedness up front so a misconfigured deployment fails
// at startup, not on the first login attempt.
func NewAdminKeyVerifier(hash string) (*AdminKeyVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("admin key hash is not a valid bcrypt hash")
	}
	return &AdminKeyVerifier{hash: []byte(hash)}, nil
}

// Verify compares the presented key against the stored hash. It returns
// ErrInvalidAdminKey on mismatch so callers never see bcrypt internals.
func (v *AdminKeyVerifier) Verify(key string) error {
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidAdminKey
	}
	return nil
}

// HashKey generates a bcrypt hash for an admin key. Used by the key
// generation tool and in tests.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
