// Package handler holds the echo handlers of the DeNote API.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"denote/internal/auth"
	"denote/internal/errors"
	"denote/internal/logging"
)

// IdentityContextKey is where the bearer middleware stores the caller's *auth.Identity.
const IdentityContextKey = "user"

// respondError maps err to an HTTP error carrying an errors.ErrorResponse.
// Server-side failures are logged with their cause; the client only sees
// the user-facing message.
func respondError(c echo.Context, err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	if httpErr.StatusCode >= http.StatusInternalServerError {
		logging.Error().
			Err(err).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("request failed")
	}
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func badRequest(message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: message,
		Code:  "VALIDATION_ERROR",
	})
}

func identityFrom(c echo.Context) (*auth.Identity, error) {
	identity, ok := c.Get(IdentityContextKey).(*auth.Identity)
	if !ok || identity == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
			Error: errors.ErrInvalidToken.Message,
			Code:  "UNAUTHORIZED",
		})
	}
	return identity, nil
}
