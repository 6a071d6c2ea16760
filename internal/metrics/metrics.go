package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denote_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "denote_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Content store
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denote_content_uploads_total",
			Help: "Total number of content store uploads by backend and result",
		},
		[]string{"backend", "result"}, // result: success, failure, rejected
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "denote_content_upload_bytes",
			Help:    "Size of pinned files in bytes",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8), // 16KiB .. 256MiB
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "denote_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Notes
	NotesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "denote_notes_created_total",
			Help: "Total number of notes created",
		},
	)

	NotesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "denote_notes_deleted_total",
			Help: "Total number of notes deleted",
		},
	)
)

// Middleware records request count and latency per matched route. It runs
// before echo's error handler writes the response, so the status is taken
// from the returned error. A panic is counted as 500 and re-raised.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					observe(c, start, http.StatusInternalServerError)
					panic(r)
				}
			}()

			err = next(c)
			observe(c, start, statusOf(c, err))
			return err
		}
	}
}

func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func observe(c echo.Context, start time.Time, status int) {
	route := c.Path()
	if route == "" {
		route = "unmatched"
	}
	method := c.Request().Method

	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
