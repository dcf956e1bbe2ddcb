package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/middleware"
)

// ErrorResponse is the standard format for API error responses. Code is
// one of the domain error kinds.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[string]int{
	domain.KindUnauthenticated:  http.StatusUnauthorized,
	domain.KindInvalidRoom:      http.StatusBadRequest,
	domain.KindValidation:       http.StatusBadRequest,
	domain.KindNotAMember:       http.StatusForbidden,
	domain.KindNotFound:         http.StatusNotFound,
	domain.KindStoreUnavailable: http.StatusServiceUnavailable,
	domain.KindSessionClosed:    http.StatusGone,
}

// StatusForKind returns the HTTP status used for an error kind.
func StatusForKind(kind string) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// httpKind maps echo's own HTTP errors back onto the taxonomy.
func httpKind(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return domain.KindUnauthenticated
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.KindValidation
	case http.StatusForbidden:
		return domain.KindNotAMember
	case http.StatusNotFound:
		return domain.KindNotFound
	case http.StatusServiceUnavailable:
		return domain.KindStoreUnavailable
	case http.StatusTooManyRequests:
		return "RateLimited"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	default:
		return domain.KindInternal
	}
}

// ErrorHandler is installed as echo's HTTPErrorHandler so every failure,
// including those raised by middleware, is rendered as an ErrorResponse.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorResponse
		he     *echo.HTTPError
	)
	if errors.As(err, &he) {
		status = he.Code
		body = ErrorResponse{Code: httpKind(he.Code), Message: fmt.Sprint(he.Message)}
	} else {
		kind := domain.Kind(err)
		status = StatusForKind(kind)
		body = ErrorResponse{Code: kind, Message: err.Error()}
		if kind == domain.KindInternal {
			body.Message = "internal error"
		}
	}

	logger := middleware.FromContext(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "status", status, "error", err)
	} else {
		logger.Debug("Request rejected", "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		logger.Error("Failed to write error response", "error", err)
	}
}

// bindAndValidate binds the request into dst and validates it, reporting
// failures as validation errors.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s", domain.ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
