// Package auth issues and checks the tokens that bind cluster workers to one
// calculation. A worker only runs jobs whose token was signed with the shared
// secret for the calculation it is serving.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrEmptyCalculation = errors.New("calculation id cannot be empty")
	ErrInvalidRole      = errors.New("invalid role")
	ErrShortSecret      = errors.New("secret must be at least 32 characters")
	ErrWrongCalculation = errors.New("token belongs to another calculation")
)

// Valid roles
const (
	RoleCoordinator = "coordinator"
	RoleWorker      = "worker"
)

var validRoles = map[string]bool{
	RoleCoordinator: true,
	RoleWorker:      true,
}

// Claims represents JWT claims
type Claims struct {
	CalculationID string    `json:"calc_id"`
	Role          string    `json:"role"`
	ExpiresAt     time.Time `json:"expires_at"`
	IssuedAt      time.Time `json:"issued_at"`
}

// TokenManager manages calculation-scoped token generation and validation
type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewTokenManager creates a new token manager.
// Returns an error if the secret is shorter than 32 characters (security requirement).
func NewTokenManager(secret string, tokenDuration time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	if tokenDuration <= 0 {
		tokenDuration = 24 * time.Hour
	}

	return &TokenManager{
		secretKey:     []byte(secret),
		tokenDuration: tokenDuration,
	}, nil
}

// GenerateToken generates a token allowing role to act on calcID
func (m *TokenManager) GenerateToken(calcID, role string) (string, error) {
	if calcID == "" {
		return "", ErrEmptyCalculation
	}
	if !validRoles[role] {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := time.Now()
	expiresAt := now.Add(m.tokenDuration)

	claims := jwt.MapClaims{
		"calc_id": calcID,
		"role":    role,
		"exp":     expiresAt.Unix(), // Standard JWT expiration claim
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns its claims
func (m *TokenManager) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	calcID, ok := claimsMap["calc_id"].(string)
	if !ok || calcID == "" {
		return nil, fmt.Errorf("%w: missing or invalid calc_id", ErrInvalidClaims)
	}
	role, ok := claimsMap["role"].(string)
	if !ok || !validRoles[role] {
		return nil, fmt.Errorf("%w: missing or invalid role", ErrInvalidClaims)
	}

	exp, err := claimsMap.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrInvalidClaims)
	}
	iat, err := claimsMap.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("%w: missing or invalid iat", ErrInvalidClaims)
	}

	return &Claims{
		CalculationID: calcID,
		Role:          role,
		ExpiresAt:     exp.Time,
		IssuedAt:      iat.Time,
	}, nil
}

// Authorize checks the token is valid for calcID and role
func (m *TokenManager) Authorize(ctx context.Context, tokenString, calcID, role string) error {
	claims, err := m.ValidateToken(ctx, tokenString)
	if err != nil {
		return err
	}
	if claims.CalculationID != calcID {
		return fmt.Errorf("%w: %s", ErrWrongCalculation, claims.CalculationID)
	}
	if claims.Role != role {
		return fmt.Errorf("%w: %s", ErrInvalidRole, claims.Role)
	}
	return nil
}

// Name returns the validator name for logging/debugging
func (m *TokenManager) Name() string {
	return "jwt-hs256"
}

// TokenDuration returns the configured token duration
func (m *TokenManager) TokenDuration() time.Duration {
	return m.tokenDuration
}
