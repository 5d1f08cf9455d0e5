package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole admits only callers whose token role matches role, compared
// case-insensitively. It guards the operator routes that read other
// principals' credit balances and must run after JWT.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := PrincipalFromContext(c); !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing principal"})
			}
			value, _ := c.Get(ContextKeyUserRole).(string)
			if strings.TrimSpace(value) == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "missing role"})
			}
			if !strings.EqualFold(value, role) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
			}
			return next(c)
		}
	}
}
