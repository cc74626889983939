package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	applogger "QuotaGame/pkg/logger"
)

// RequestLogging logs requests at debug level. A price stream is logged at info when
// the client disconnects, since the handler only returns then. Paths in skip, such as
// the scrape endpoint, are not logged.
func RequestLogging(l *applogger.Logger, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, p := range skip {
				if req.URL.Path == p {
					return next(c)
				}
			}
			start := time.Now()
			err := next(c)

			res := c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes_out", res.Size),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			if isUpgrade(c) {
				l.Info("stream closed", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return err
		}
	}
}

func isUpgrade(c echo.Context) bool {
	return strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket")
}
