package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims: identity plus the tenant and role set the
// authorization layer evaluates.
type Claims struct {
	UserID        uuid.UUID  `json:"user_id"`
	Email         string     `json:"email"`
	Roles         []string   `json:"roles"`
	ChurchID      *uuid.UUID `json:"church_id,omitempty"`
	LocalChurchID *uuid.UUID `json:"local_church_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the verified claims into the authorization-layer actor.
func (c *Claims) Actor() authz.Actor {
	roles := make([]authz.Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		if role, ok := authz.ParseRole(r); ok {
			roles = append(roles, role)
		}
	}
	return authz.Actor{
		UserID:        c.UserID,
		TenantID:      c.ChurchID,
		LocalChurchID: c.LocalChurchID,
		Roles:         roles,
	}
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a new JWT for the user.
func (s *JWTService) Generate(userID uuid.UUID, email string, roles []authz.Role, churchID, localChurchID *uuid.UUID) (string, error) {
	roleStrs := make([]string, 0, len(roles))
	for _, r := range roles {
		roleStrs = append(roleStrs, string(r))
	}
	claims := Claims{
		UserID:        userID,
		Email:         email,
		Roles:         roleStrs,
		ChurchID:      churchID,
		LocalChurchID: localChurchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
