// Yantra API server
// Accepts code submissions and compiler definitions, seeds the template
// catalog, and hands work to workers through the broker.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yantra/internal/compilers"
	"yantra/internal/config"
	"yantra/internal/db"
	"yantra/internal/handlers"
	"yantra/internal/logging"
	"yantra/internal/queue"
	"yantra/internal/staging"
	"yantra/internal/submissions"
	"yantra/internal/templates"
)

func main() {
	logging.Init()
	defer logging.Sync()
	log := logging.S()

	cfg := config.Load()

	database, err := db.New(cfg)
	if err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}

	redisClient := queue.NewClient(cfg)
	broker := queue.NewBroker(redisClient, cfg.JobQueueName, cfg.BuildQueueName)
	if err := broker.Ping(context.Background()); err != nil {
		log.Fatalw("failed to connect to broker", "error", err)
	}

	seedResult, err := templates.Seed(context.Background(), database.DB)
	if err != nil {
		log.Warnw("template seeding failed", "error", err)
	} else {
		log.Infow("template catalog ready",
			"added", len(seedResult.Added), "skipped", len(seedResult.Skipped))
	}

	stager := staging.NewStager(cfg.JobsDir, cfg.MaxUploadFiles, cfg.MaxUploadBytes, cfg.AllowedExts)

	handler := handlers.NewHandler(
		submissions.NewService(database.DB, broker, stager),
		compilers.NewService(database.DB, broker),
		templates.NewService(database.DB),
	)
	router := handlers.SetupRouter(handler, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("yantra api listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
}
