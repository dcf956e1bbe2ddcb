package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/identity"
)

const UserContextKey = "user"

// Auth rejects requests that do not carry a valid bearer credential. The
// credential is read from the Authorization header, falling back to the
// token query parameter for clients that cannot set headers.
func Auth(authn identity.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := bearerToken(c.Request())
			if credential == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			principal, err := authn.Authenticate(c.Request().Context(), credential)
			if err != nil {
				FromContext(c.Request().Context()).Info("Rejected request credential", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(UserContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal stored by Auth.
func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(UserContextKey).(domain.Principal)
	return p, ok && !p.IsZero()
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get(echo.HeaderAuthorization); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
