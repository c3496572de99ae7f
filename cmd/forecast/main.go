package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshbasket/forecast/internal/app"
	"github.com/freshbasket/forecast/internal/observability"
	"github.com/freshbasket/forecast/internal/platform/cache"
	"github.com/freshbasket/forecast/internal/shared"
	"github.com/freshbasket/forecast/internal/view"
	"github.com/freshbasket/forecast/internal/workspace"
	workspacehttp "github.com/freshbasket/forecast/internal/workspace/http"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	sessionManager := shared.NewSessionManager(redisClient, "forecast_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	// Both were validated by LoadConfig.
	layout, _ := cfg.Layout()
	location, _ := cfg.Location()

	metrics := observability.NewMetrics()

	forecastService := workspace.NewService(
		workspace.NewStore(redisClient, cfg.WorkspaceTTL),
		workspace.NewCatalogCache(redisClient, cfg.CatalogCacheTTL, metrics),
		workspace.Options{
			Layout:       layout,
			Branches:     cfg.Branches,
			IncludeZeros: cfg.InvoiceIncludeZeros,
			Location:     location,
			ShareURL:     cfg.ShareURL,
		},
		metrics,
		logger,
	)
	forecastHandler := workspacehttp.NewHandler(logger, forecastService, templates, csrfManager, workspacehttp.Options{
		MaxUploadBytes: cfg.UploadMaxBytes,
		UploadLimiter:  app.UploadLimiter(cfg),
	})

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		ForecastHandler: forecastHandler,
		Metrics:         metrics,
		HealthCheck: func(r *http.Request) error {
			return redisClient.Ping(r.Context()).Err()
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("mode", string(layout.Mode)),
			slog.Any("horizons", layout.Horizons),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
