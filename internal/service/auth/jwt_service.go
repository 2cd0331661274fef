package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService defines operations for issuing and validating admin tokens.
type JWTService interface {
	// GenerateToken creates a signed admin access token.
	// Returns the token string or an error if signing fails.
	GenerateToken(ctx context.Context) (string, error)

	// ValidateToken validates the provided token string and extracts the
	// claims. Returns an error if validation fails (expired, invalid
	// signature, malformed).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated content of an admin token.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// adminSubject is the subject claim of every token this service issues.
const adminSubject = "admin"

// MockJWTService is a test double for JWTService.
type MockJWTService struct {
	GenerateTokenFn func(ctx context.Context) (string, error)
	ValidateTokenFn func(ctx context.Context, tokenString string) (*Claims, error)
}

var _ JWTService = (*MockJWTService)(nil)

// GenerateToken calls GenerateTokenFn if set, otherwise returns a fixed token.
func (m *MockJWTService) GenerateToken(ctx context.Context) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx)
	}
	return "test-token-" + uuid.New().String(), nil
}

// ValidateToken calls ValidateTokenFn if set, otherwise accepts any token.
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	now := time.Now().UTC()
	return &Claims{
		Subject:   adminSubject,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		ID:        uuid.New().String(),
	}, nil
}
