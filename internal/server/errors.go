package server

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/handlers"
	appmiddleware "github.com/nfrund/chatrelay/internal/middleware"
)

// setupErrorHandling installs the API error renderer. Errors outside the
// domain taxonomy are logged with a stack trace before rendering.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) && domain.Kind(err) == domain.KindInternal {
			appmiddleware.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
				"error", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"stack_trace", string(debug.Stack()),
			)
		} else if he != nil && he.Code >= http.StatusInternalServerError {
			appmiddleware.FromContext(c.Request().Context()).Error("HTTP error", "status", he.Code, "error", err)
		}
		handlers.ErrorHandler(err, c)
	}
}
