package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/entity"
	"github.com/octobees/leads-discovery/internal/service/credits"
)

// APIResponse is the JSON envelope of every non-streaming discovery endpoint
// and of search requests rejected before their event stream opens.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Success writes data inside a success envelope. A zero status means 200.
func Success(c echo.Context, status int, message string, data any) error {
	if status == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, APIResponse{Status: "success", Message: message, Data: data})
}

// Error writes an error envelope. A zero status means 500.
func Error(c echo.Context, status int, message string) error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, APIResponse{Status: "error", Message: message})
}

// Fail maps a domain error onto the envelope: an invalid brief is a 400
// carrying the validation message, an exhausted balance a 402, anything
// else a 500 with the generic fallback so internals never leak.
func Fail(c echo.Context, err error, fallback string) error {
	switch {
	case eris.Is(err, entity.ErrInvalidBrief):
		return Error(c, http.StatusBadRequest, err.Error())
	case eris.Is(err, credits.ErrInsufficientCredits):
		return Error(c, http.StatusPaymentRequired, "insufficient credits")
	default:
		return Error(c, http.StatusInternalServerError, fallback)
	}
}
