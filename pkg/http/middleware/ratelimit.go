package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower decides whether one more request for key is admitted.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once the client's bucket is empty. Safe methods
// are not limited.
func RateLimit(a Allower) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodGet || c.Request().Method == http.MethodOptions {
				return next(c)
			}
			if !a.Allow(c.RealIP()) {
				return reject(c, http.StatusTooManyRequests, "ERR_RATE_LIMITED")
			}
			return next(c)
		}
	}
}
