package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_CountsByRouteAndStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/notes/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "note not found")
		}
		return c.String(http.StatusOK, "ok")
	})

	ok := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/notes/:id", "200")
	missing := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/notes/:id", "404")
	okBefore, missingBefore := testutil.ToFloat64(ok), testutil.ToFloat64(missing)

	for _, path := range []string{"/notes/a", "/notes/b", "/notes/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, okBefore+2, testutil.ToFloat64(ok))
	assert.Equal(t, missingBefore+1, testutil.ToFloat64(missing))
}

func TestMiddleware_PlainErrorAndPanicCountAsServerError(t *testing.T) {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("boom")
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("kaboom")
	})

	for _, route := range []string{"/boom", "/panic"} {
		failed := HTTPRequestsTotal.WithLabelValues(http.MethodGet, route, "500")
		okCount := HTTPRequestsTotal.WithLabelValues(http.MethodGet, route, "200")
		failedBefore, okBefore := testutil.ToFloat64(failed), testutil.ToFloat64(okCount)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, route, nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code, route)
		assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed), route)
		assert.Equal(t, okBefore, testutil.ToFloat64(okCount), route)
	}
}
