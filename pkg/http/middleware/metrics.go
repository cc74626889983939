package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "QuotaGame/pkg/logger"
)

// HTTPMetrics holds the request collectors. Routes are labelled by their echo template
// so label cardinality stays bounded. Streams are counted apart from request latency
// because they live as long as the client stays connected.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	streams  prometheus.Gauge
}

// NewHTTPMetrics registers the collectors on reg, reusing ones an earlier server
// registered there.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: reuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotagame_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"})),
		duration: reuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotagame_http_request_duration_seconds",
			Help:    "HTTP request latency, streams excluded.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "class"})),
		inFlight: reuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotagame_http_in_flight_requests",
			Help: "HTTP requests being served.",
		}, []string{"route"})),
		streams: reuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotagame_http_open_streams",
			Help: "Connected price stream clients.",
		})),
	}
}

func reuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Middleware records every request. 5xx responses are logged as errors and requests
// slower than slow as warnings.
func (m *HTTPMetrics) Middleware(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			if isUpgrade(c) {
				m.streams.Inc()
				defer m.streams.Dec()
			}

			m.inFlight.WithLabelValues(route).Inc()
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the response so the status is known
				c.Error(err)
			}
			elapsed := time.Since(start)
			m.inFlight.WithLabelValues(route).Dec()

			code := c.Response().Status
			status := strconv.Itoa(code)
			m.requests.WithLabelValues(route, method, status).Inc()
			if isUpgrade(c) {
				return nil
			}
			m.duration.WithLabelValues(route, method, statusClass(code)).Observe(elapsed.Seconds())

			switch {
			case code >= 500:
				l.Error("http request failed",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("duration_ms", elapsed))
			case slow > 0 && elapsed >= slow:
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("duration_ms", elapsed))
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
