package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-discovery/internal/entity"
)

// Context keys used to store authentication metadata.
const (
	ContextKeyUserID    = "user_id"
	ContextKeyUserEmail = "user_email"
	ContextKeyUserRole  = "user_role"
	ContextKeyPrincipal = "principal"
	ContextKeyRequestID = "request_id"
)

// PrincipalFromContext returns the credit principal stored by JWT.
func PrincipalFromContext(c echo.Context) (entity.Principal, bool) {
	p, ok := c.Get(ContextKeyPrincipal).(entity.Principal)
	if !ok || p.ID == "" {
		return entity.Principal{}, false
	}
	return p, true
}
