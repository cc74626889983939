package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
}

func TestServer_StartServesAndReportsBusyPort(t *testing.T) {
	srv := NewServer(pingRoutes{}, WithHost("127.0.0.1"), WithPort(0), WithMetrics(true, "/metrics"))
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	base := "http://" + srv.Addr()
	resp, err := http.Get(base + "/api/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "pong") {
		t.Fatalf("ping = %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "quotagame_http_requests_total") {
		t.Fatal("request metrics missing from the scrape")
	}

	_, port, _ := net.SplitHostPort(srv.Addr())
	n, _ := strconv.Atoi(port)
	busy := NewServer(pingRoutes{}, WithHost("127.0.0.1"), WithPort(n), WithMetrics(false, ""))
	if err := busy.Start(); err == nil {
		busy.Stop(context.Background())
		t.Fatal("second server bound a port in use")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
