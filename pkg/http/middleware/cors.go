package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// OriginPolicy is the list of browser origins allowed to call the game API. An entry is
// "*", an exact origin such as "https://play.example.com", or a subdomain wildcard such
// as "https://*.example.com".
type OriginPolicy []string

// Allows reports whether origin matches an entry.
func (p OriginPolicy) Allows(origin string) bool {
	for _, o := range p {
		switch {
		case o == "*", o == origin:
			return true
		case strings.Contains(o, "://*."):
			scheme, suffix, _ := strings.Cut(o, "*")
			if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) &&
				len(origin) > len(scheme)+len(suffix) {
				return true
			}
		}
	}
	return false
}

// CheckOrigin is a websocket upgrader origin check. Requests without an Origin header are
// not from a browser and pass; same-host requests always pass.
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get(echo.HeaderOrigin)
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return p.Allows(origin)
}

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept}, ", ")
)

// CORS answers preflights for the game routes and tags responses to allowed origins.
// Requests from other origins are served without CORS headers; the browser blocks them.
func CORS(p OriginPolicy, maxAge time.Duration) echo.MiddlewareFunc {
	age := strconv.Itoa(int(maxAge / time.Second))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req, h := c.Request(), c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !p.Allows(origin) {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)

			if req.Method != http.MethodOptions || req.Header.Get(echo.HeaderAccessControlRequestMethod) == "" {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			if maxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, age)
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}
