package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID      string  `json:"uid"`
	MillID      string  `json:"mid,omitempty"`
	Email       string  `json:"email,omitempty"`
	DisplayName string  `json:"name,omitempty"`
	Role        string  `json:"role"`
	Permissions []Grant `json:"perms,omitempty"`
	TokenType   string  `json:"type"`
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	signingKey         []byte
	issuer             string
	expiryHours        int
	refreshExpiryHours int
}

func NewTokenService(signingKey, issuer string, expiryHours, refreshExpiryHours int) *TokenService {
	return &TokenService{
		signingKey:         []byte(signingKey),
		issuer:             issuer,
		expiryHours:        expiryHours,
		refreshExpiryHours: refreshExpiryHours,
	}
}

// AccessTTL is the lifetime of access tokens and of the session cookie.
func (s *TokenService) AccessTTL() time.Duration {
	return time.Duration(s.expiryHours) * time.Hour
}

func (s *TokenService) CreateAccessToken(identity *Identity) (string, error) {
	return s.createToken(identity, TokenTypeAccess, s.expiryHours)
}

func (s *TokenService) CreateRefreshToken(identity *Identity) (string, error) {
	return s.createToken(identity, TokenTypeRefresh, s.refreshExpiryHours)
}

func (s *TokenService) createToken(identity *Identity, tokenType string, expiryHours int) (string, error) {
	now := time.Now()

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiryHours) * time.Hour)),
		},
		UserID:      identity.UserID,
		MillID:      identity.MillID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		TokenType:   tokenType,
	}
	// Refresh tokens only identify the user; grants are reloaded on refresh.
	if tokenType == TokenTypeAccess {
		claims.Permissions = identity.Permissions
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

func (s *TokenService) ValidateToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		UserID:      claims.UserID,
		MillID:      claims.MillID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		TokenType:   claims.TokenType,
	}, nil
}
