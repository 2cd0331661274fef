// Package auth provides admin authentication: a bcrypt-hashed admin key is
// exchanged for a short-lived HMAC-signed JWT that the middleware validates
// on every protected request.
package auth

import "errors"

// Authentication errors returned by the auth service.
var (
	// ErrInvalidToken indicates the token is malformed or its signature does
	// not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token's expiry has passed.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenNotYetValid indicates the token's not-before time is in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrInvalidAdminKey indicates the presented admin key does not match the
	// configured hash.
	ErrInvalidAdminKey = errors.New("invalid admin key")
)
