package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	applogger "QuotaGame/pkg/logger"
)

type denyAfter struct{ left int }

func (d *denyAfter) Allow(string) bool {
	d.left--
	return d.left >= 0
}

func serve(e *echo.Echo, method, path string) int {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec.Code
}

func TestRateLimit_OnlyMutatingRequests(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(&denyAfter{left: 1}))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/state", ok)
	e.POST("/zoom", ok)

	if code := serve(e, http.MethodPost, "/zoom"); code != http.StatusOK {
		t.Fatalf("first post = %d", code)
	}
	if code := serve(e, http.MethodPost, "/zoom"); code != http.StatusTooManyRequests {
		t.Fatalf("second post = %d", code)
	}
	if code := serve(e, http.MethodGet, "/state"); code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
}

func TestRecover_TurnsPanicInto500(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.NewNop()))
	e.Use(RequestLogging(applogger.NewNop()))
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	if code := serve(e, http.MethodGet, "/boom"); code != http.StatusInternalServerError {
		t.Fatalf("code = %d", code)
	}
}

func TestOriginPolicy(t *testing.T) {
	p := OriginPolicy{"https://play.example.com", "https://*.quota.test"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://play.example.com", true},
		{"https://eu.quota.test", true},
		{"https://quota.test", false},
		{"http://eu.quota.test", false},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		if got := p.Allows(tt.origin); got != tt.want {
			t.Errorf("Allows(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
	if !(OriginPolicy{"*"}).Allows("https://anything") {
		t.Error("wildcard rejected")
	}

	r := httptest.NewRequest(http.MethodGet, "http://game.local/api/stream", nil)
	if !p.CheckOrigin(r) {
		t.Error("request without Origin rejected")
	}
	r.Header.Set(echo.HeaderOrigin, "http://game.local")
	if !p.CheckOrigin(r) {
		t.Error("same-host origin rejected")
	}
	r.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	if p.CheckOrigin(r) {
		t.Error("foreign origin accepted")
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(OriginPolicy{"https://play.example.com"}, 10*time.Minute))
	e.POST("/api/confirm", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/confirm", nil)
		req.Header.Set(echo.HeaderOrigin, origin)
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://play.example.com")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://play.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlMaxAge); got != "600" {
		t.Fatalf("max-age = %q", got)
	}

	rec = preflight("https://evil.example.com")
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Fatal("foreign origin got CORS headers")
	}
}

func TestRecover_LeavesCommittedResponse(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.NewNop()))
	e.GET("/late", func(c echo.Context) error {
		_ = c.String(http.StatusOK, "partial")
		panic("after write")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/late", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Fatalf("code = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestHTTPMetrics_LabelsByRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	if again := NewHTTPMetrics(reg); again.requests != m.requests {
		t.Fatal("second registration did not reuse collectors")
	}

	e := echo.New()
	e.Use(m.Middleware(applogger.NewNop(), 0))
	e.GET("/api/v1/game/series/:n", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.POST("/api/v1/game/zoom", func(echo.Context) error { return echo.NewHTTPError(http.StatusConflict) })

	serve(e, http.MethodGet, "/api/v1/game/series/10")
	serve(e, http.MethodGet, "/api/v1/game/series/20")
	if code := serve(e, http.MethodPost, "/api/v1/game/zoom"); code != http.StatusConflict {
		t.Fatalf("zoom = %d", code)
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/game/series/:n", http.MethodGet, "200")); got != 2 {
		t.Fatalf("series requests = %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/game/zoom", http.MethodPost, "409")); got != 1 {
		t.Fatalf("zoom requests = %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight.WithLabelValues("/api/v1/game/zoom")); got != 0 {
		t.Fatalf("in flight = %v", got)
	}
	if statusClass(204) != "2xx" || statusClass(0) != "5xx" {
		t.Fatal("status class")
	}
}
