package middleware_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/handlers"
	"github.com/nfrund/chatrelay/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedServer(perSecond float64) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handlers.ErrorHandler
	e.GET("/api/rooms", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"rooms": []string{}})
	}, middleware.RateLimiter(perSecond))
	return e
}

func get(e *echo.Echo, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BurstFollowsRate(t *testing.T) {
	tests := []struct {
		perSecond float64
		burst     int
	}{
		{perSecond: 0.5, burst: 1},
		{perSecond: 1, burst: 1},
		{perSecond: 3, burst: 3},
		{perSecond: 4, burst: 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%g per second", tt.perSecond), func(t *testing.T) {
			e := newLimitedServer(tt.perSecond)

			for i := 0; i < tt.burst; i++ {
				require.Equal(t, http.StatusOK, get(e, "198.51.100.7:4000").Code, "request %d", i+1)
			}

			rec := get(e, "198.51.100.7:4000")
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)

			var body handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "RateLimited", body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRateLimiter_CountsEachClientSeparately(t *testing.T) {
	e := newLimitedServer(2)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(e, "203.0.113.1:5000").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(e, "203.0.113.1:5001").Code, "same IP, new port")
	assert.Equal(t, http.StatusOK, get(e, "203.0.113.2:5000").Code, "another client keeps its budget")
}
