package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-discovery/internal/dto"
	"github.com/octobees/leads-discovery/internal/entity"
	middleware "github.com/octobees/leads-discovery/internal/middleware"
)

// BalanceReader reports a principal's remaining credits.
type BalanceReader interface {
	CheckBalance(ctx context.Context, principal entity.Principal) (int, error)
}

// CreditsHandler exposes credit balance endpoints.
type CreditsHandler struct {
	balances BalanceReader
}

// NewCreditsHandler creates a new handler instance.
func NewCreditsHandler(balances BalanceReader) *CreditsHandler {
	return &CreditsHandler{balances: balances}
}

// Balance handles GET /credits/balance for the authenticated caller.
func (h *CreditsHandler) Balance(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return Error(c, http.StatusUnauthorized, "missing principal")
	}
	return h.respond(c, principal)
}

// PrincipalBalance handles GET /admin/credits/:principal_id.
func (h *CreditsHandler) PrincipalBalance(c echo.Context) error {
	id := strings.TrimSpace(c.Param("principal_id"))
	if id == "" {
		return Error(c, http.StatusBadRequest, "principal_id is required")
	}
	return h.respond(c, entity.Principal{ID: id})
}

func (h *CreditsHandler) respond(c echo.Context, principal entity.Principal) error {
	balance, err := h.balances.CheckBalance(c.Request().Context(), principal)
	if err != nil {
		return Fail(c, err, "failed to read credit balance")
	}
	return Success(c, http.StatusOK, "", dto.BalanceResponse{
		PrincipalID: principal.ID,
		Balance:     balance,
		Exempt:      principal.Exempt,
	})
}
