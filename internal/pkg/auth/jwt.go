// internal/pkg/auth/jwt.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/your-org/seasonal-storefront/internal/config"
)

const tokenTypeAccess = "access"

// Claims represents the JWT claims issued by the authentication provider
type Claims struct {
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	TokenType   string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager verifies tokens. Minting exists for local development and tests.
type JWTManager struct {
	config *config.Config
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.Config) *JWTManager {
	return &JWTManager{
		config: cfg,
	}
}

// GenerateAccessToken signs an access token for the given identity
func (j *JWTManager) GenerateAccessToken(id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now().UTC()

	claims := &Claims{
		Email:       id.Email,
		DisplayName: id.DisplayName,
		TokenType:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.JWT.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.config.JWT.Issuer,
			Subject:   id.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.JWT.Secret))
}

// ValidateAccessToken parses an access token and returns the caller identity
func (j *JWTManager) ValidateAccessToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.config.JWT.Secret), nil
	}, jwt.WithIssuer(j.config.JWT.Issuer))
	if err != nil {
		return Anonymous, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Anonymous, fmt.Errorf("invalid token claims")
	}

	if claims.TokenType != tokenTypeAccess {
		return Anonymous, fmt.Errorf("invalid token type: expected access, got %q", claims.TokenType)
	}
	if claims.Subject == "" {
		return Anonymous, fmt.Errorf("token has no subject")
	}

	return Identity{
		IsAuthenticated: true,
		UserID:          claims.Subject,
		DisplayName:     claims.DisplayName,
		Email:           claims.Email,
	}, nil
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func ExtractTokenFromHeader(authHeader string) string {
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}
