package router

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	"denote/internal/config"
	"denote/internal/errors"
	"denote/internal/handler"
	"denote/internal/logging"
	"denote/internal/metrics"
	"denote/internal/service"
)

// BasePath prefixes every API route.
const BasePath = "/api/denote"

// multipart framing and text fields on top of the file itself
const uploadOverheadBytes = 1 << 20

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	authService service.AuthService,
	authHandler *handler.AuthHandler,
	noteHandler *handler.NoteHandler,
) {
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Origins(),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(metrics.Middleware())

	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group(BasePath)

	// Public routes
	authLimit := authRateLimiter(cfg.AuthRateLimit)
	api.POST("/register", authHandler.Register, authLimit)
	api.POST("/login", authHandler.Login, authLimit)

	// Secured routes (require a bearer token)
	secured := api.Group("", bearerAuth(authService))

	secured.GET("/profile", authHandler.Profile)

	secured.POST("/notes", noteHandler.Create, middleware.BodyLimit(bodyLimit(cfg.MaxUploadBytes)))
	secured.GET("/notes", noteHandler.List)
	secured.GET("/notes/:id", noteHandler.Get)
	secured.PATCH("/notes/:id", noteHandler.UpdateRating)
	secured.DELETE("/notes", noteHandler.Delete)
}

func bearerAuth(authService service.AuthService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  handler.IdentityContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return authService.Validate(token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			message := errors.ErrInvalidToken.Message
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				message = "missing bearer token"
			}
			return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
				Error: message,
				Code:  "UNAUTHORIZED",
			})
		},
	})
}

func authRateLimiter(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, errors.ErrorResponse{
				Error: "too many requests",
				Code:  "RATE_LIMITED",
			})
		},
	})
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogRequestID: true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := logging.Info()
			if v.Status >= http.StatusInternalServerError {
				event = logging.Error().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

func bodyLimit(maxUploadBytes int64) string {
	return fmt.Sprintf("%dK", (maxUploadBytes+uploadOverheadBytes+1023)/1024)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
