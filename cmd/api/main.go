package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"syntarex/internal/app"
	"syntarex/internal/handlers"
	"syntarex/internal/middleware"
	"syntarex/internal/notify"
	"syntarex/internal/routes"
	"syntarex/pkg/config"
	"syntarex/pkg/metrics"

	log "github.com/sirupsen/logrus"
)

func main() {
	settings := config.LoadSettings()
	config.InitLogger(settings.LogLevel, settings.LogFormat, settings.LogFile)

	// Initialize database
	config.InitDB(settings)
	if settings.RunMigrations {
		config.ExecuteMigrations(settings.MigrationsDir)
	}

	config.InitRedis(settings)

	// RabbitMQ is optional; without it settlement events only reach websocket clients
	if settings.RabbitMQEnabled() {
		config.InitRabbitMQ(settings)
		defer config.RabbitMQ.Close()
	} else {
		log.Info("RabbitMQ not configured, skipping initialization")
	}

	m := metrics.New(nil)
	hub := notify.NewHub(settings.AllowedOrigins, m)

	components, err := app.NewEngine(settings, m, hub)
	if err != nil {
		log.Fatal("Failed to build settlement engine: ", err)
	}
	defer components.Close()
	handlers.SetSettlementEngine(components.Engine)

	// Set up router
	r := routes.SetupRouter(routes.RouterConfig{
		AllowedOrigins: settings.AllowedOrigins,
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerSecond: settings.RateLimitRPS,
			Burst:             settings.RateLimitBurst,
		},
		Metrics: m,
		Events:  hub,
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Commission API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}
