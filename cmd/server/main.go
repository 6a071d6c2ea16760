package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"denote/docs"
	"denote/internal/app"
	"denote/internal/config"
	"denote/internal/handler"
	"denote/internal/logging"
	"denote/internal/router"
)

const shutdownTimeout = 15 * time.Second

// @title DeNote API
// @version 1.0
// @description Decentralized notes sharing: PDFs pinned on IPFS, metadata and accounts in the database.
// @host localhost:8080
// @BasePath /api/denote
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("init")
	}
	defer a.Close(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ServerTimeout
	e.Server.WriteTimeout = cfg.ServerTimeout

	router.Register(
		e,
		cfg,
		a.AuthService,
		handler.NewAuthHandler(a.AuthService),
		handler.NewNoteHandler(a.NoteService, cfg.MaxUploadBytes),
	)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "http://"), "https://")
	}
	logging.Info().
		Str("swagger", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html").
		Str("store", cfg.StoreDriver).
		Str("pinning", cfg.PinningProvider).
		Msg("configured")

	addr := ":" + cfg.ServerPort
	go func() {
		logging.Info().Str("addr", addr).Msg("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("server start")
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown")
	}
}
