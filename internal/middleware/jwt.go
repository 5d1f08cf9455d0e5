package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	authpkg "github.com/octobees/leads-discovery/internal/auth"
)

// JWT authenticates the caller from its bearer token and stores the credit
// principal searches are billed to, plus the raw claims for role checks.
// Rejected requests never reach the search or credits handlers.
func JWT(manager *authpkg.JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, reason := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if reason != "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": reason})
			}

			claims, err := manager.ParseToken(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}

			principal := claims.Principal()
			c.Set(ContextKeyPrincipal, principal)
			c.Set(ContextKeyUserID, principal.ID)
			c.Set(ContextKeyUserEmail, claims.Email)
			c.Set(ContextKeyUserRole, claims.Role)

			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header, returning a
// rejection reason when the header is unusable.
func bearerToken(header string) (string, string) {
	if strings.TrimSpace(header) == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "invalid authorization header"
	}
	return token, ""
}
