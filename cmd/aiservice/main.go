package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/app"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/handlers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/reload"
	"github.com/steelburn/candidacy-sub001/internal/shared/config"
	"github.com/steelburn/candidacy-sub001/internal/shared/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	log.WithFields(log.Fields{"port": cfg.Port, "env": cfg.Env}).Info("Starting AI orchestration service")

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if cfg.CatalogPath != "" {
		sum, err := reload.ApplyCatalog(ctx, cfg.CatalogPath, a.DB, a.Service)
		if err != nil {
			log.Fatalf("Failed to apply catalog: %v", err)
		}
		log.WithFields(log.Fields{
			"event":     "catalog_seeded",
			"providers": sum.Providers,
			"services":  sum.Services,
		}).Info("Catalog applied")
	}
	log.WithField("providers", a.Registry.Snapshot().Len()).Info("Provider registry loaded")

	// Reload triggers
	if a.Redis != nil {
		sub := reload.NewSubscriber(a.Redis, cfg.ReloadChannel, a.Service)
		go func() {
			if err := sub.Run(ctx); err != nil {
				log.WithField("event", "reload_subscriber_stopped").WithError(err).Error("Reload subscriber stopped")
			}
		}()
	}
	if cfg.CatalogPath != "" {
		w := reload.NewWatcher(cfg.CatalogPath, a.DB, a.Service)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.WithField("event", "catalog_watcher_stopped").WithError(err).Error("Catalog watcher stopped")
			}
		}()
	}

	retention := time.Duration(cfg.LogRetentionDays) * 24 * time.Hour
	scheduler, err := reload.NewScheduler(a.Service, cfg.RegistryRefreshSchedule, a.DB, retention)
	if err != nil {
		log.Fatalf("Failed to configure scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Requests must outlive the slowest provider timeout
	requestTimeout := cfg.DocumentTimeout + 30*time.Second
	if cfg.LLMTimeout+30*time.Second > requestTimeout {
		requestTimeout = cfg.LLMTimeout + 30*time.Second
	}

	h := handlers.NewHandler(a.Service, a.Logs, a.Broadcast())

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(h, requestTimeout),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}

	log.Info("Server stopped")
}
