package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/entity"
)

// RoleAdmin marks operators whose searches are never metered.
const RoleAdmin = "admin"

// Claims defines the payload encoded for authenticated callers.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	// Unmetered exempts the caller from credit checks regardless of role.
	Unmetered bool `json:"unmetered,omitempty"`
}

// Principal maps the claims to the identity searches are billed to.
func (c *Claims) Principal() entity.Principal {
	return entity.Principal{
		ID:     c.Subject,
		Exempt: c.Unmetered || strings.EqualFold(c.Role, RoleAdmin),
	}
}

// JWTManager handles issuing and verifying HMAC signed tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager constructs a manager with the given secret and token lifetime.
func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl}
}

// GenerateToken creates an access token for the provided subject.
func (m *JWTManager) GenerateToken(subject, email, role string, unmetered bool) (string, error) {
	if len(m.secret) == 0 {
		return "", eris.New("jwt secret must not be empty")
	}
	if strings.TrimSpace(subject) == "" {
		return "", eris.New("jwt subject must not be empty")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:     email,
		Role:      role,
		Unmetered: unmetered,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", eris.Wrap(err, "sign token")
	}
	return signed, nil
}

// ParseToken verifies the token signature and payload integrity.
func (m *JWTManager) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, eris.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "parse token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, eris.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, eris.New("token has no subject")
	}
	return claims, nil
}
