package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "QuotaGame/pkg/logger"
)

// Recover turns a handler panic into a 500 envelope and logs the stack. A response
// that is already committed, such as a hijacked stream, is left as it is.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}
				l.Error("http handler panic",
					applogger.String("route", c.Path()),
					applogger.String("method", c.Request().Method),
					applogger.Any("panic", r),
					applogger.String("stack", string(debug.Stack())))
				if c.Response().Committed {
					err = nil
					return
				}
				err = reject(c, http.StatusInternalServerError, "ERR_INTERNAL")
			}()
			return next(c)
		}
	}
}

// reject writes the API error envelope without a payload.
func reject(c echo.Context, status int, code string) error {
	return c.JSON(status, map[string]interface{}{
		"status":  status,
		"code":    code,
		"message": http.StatusText(status),
	})
}
