package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carepulse/analytics-platform/pkg/analytics"
	"github.com/carepulse/analytics-platform/pkg/common/config"
	"github.com/carepulse/analytics-platform/pkg/common/database"
	"github.com/carepulse/analytics-platform/pkg/common/kafka"
	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/carepulse/analytics-platform/pkg/gateway/middleware"
	"github.com/carepulse/analytics-platform/pkg/observability/metrics"
	"github.com/carepulse/analytics-platform/pkg/seed"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	seedRepo := seed.NewRepository(db)
	if err := seedRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate tables")
	}

	cache := database.NewRedis(cfg)
	defer database.CloseRedis(cache)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaReportTopic)
	defer producer.Close()

	if cfg.AutoSeed {
		sources, err := seed.LoadSources(cfg.SeedSourcesFile)
		if err != nil {
			logger.Log.WithError(err).Warn("invalid seed source map, using defaults")
		}
		seeder := seed.NewService(seedRepo, cfg.DataDir, sources, producer, cache)
		// The query surface stays up in degraded form when seeding fails;
		// re-running ingestion is the recovery path.
		if _, err := seeder.Run(context.Background()); err != nil {
			logger.Log.WithError(err).Error("ingestion run failed, serving previously committed data")
		}
	}

	service := analytics.NewService(analytics.NewRepository(db), cache, cfg.CountsCacheTTL)
	handler := analytics.NewHandler(service)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Analytics Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Analytics Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Analytics Service stopped")
}
