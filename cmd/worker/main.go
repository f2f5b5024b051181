// Yantra worker process
// Drains the job and build queues and runs sandboxed executions and image
// builds. Run several of these to scale out.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"yantra/internal/config"
	"yantra/internal/db"
	"yantra/internal/logging"
	"yantra/internal/queue"
	"yantra/internal/sandbox"
	"yantra/internal/worker"
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

	executor := sandbox.NewDockerExecutor(cfg.ContainerRuntime, cfg.BuildTimeout, cfg.SandboxMountPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(database.DB, broker, executor, cfg)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("worker exited", "error", err)
		os.Exit(1)
	}
}
