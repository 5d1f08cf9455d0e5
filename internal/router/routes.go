package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-discovery/internal/auth"
	"github.com/octobees/leads-discovery/internal/config"
	"github.com/octobees/leads-discovery/internal/handler"
	middlewarepkg "github.com/octobees/leads-discovery/internal/middleware"
)

// SearchStreamPath is the rate-limited discovery endpoint.
const SearchStreamPath = "/search/stream"

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Search  *handler.SearchHandler
	Credits *handler.CreditsHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, jwtManager *auth.JWTManager, handlers Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return handler.Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok"})
	})

	secured := e.Group("")
	secured.Use(middlewarepkg.JWT(jwtManager))

	if handlers.Search != nil {
		secured.GET(SearchStreamPath, handlers.Search.Stream, middlewarepkg.RateLimiter(cfg.RateLimitSearch, SearchStreamPath))
	}
	if handlers.Credits != nil {
		secured.GET("/credits/balance", handlers.Credits.Balance)

		admin := secured.Group("/admin", middlewarepkg.RequireRole(auth.RoleAdmin))
		admin.GET("/credits/:principal_id", handlers.Credits.PrincipalBalance)
	}
}
