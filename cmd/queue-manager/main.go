// cmd/queue-manager/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "article-pipeline/docs"
	"article-pipeline/internal/app"
	"article-pipeline/internal/config"
	"article-pipeline/internal/service"
	httptransport "article-pipeline/internal/transport/http"
)

// @title Article Pipeline API
// @version 1.0
// @description Queue manager, stage worker and orchestrator endpoints.
// @BasePath /
func main() {
	if err := run(); err != nil {
		log.Fatalf("queue-manager: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.RoleQueueManager); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := app.NewLogger(cfg, "queue-manager")
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	qm := service.NewQueueManager(stores.Jobs, service.Options{Lease: cfg.Lease(), Logger: logger})
	h := httptransport.NewQueueHandler(qm)

	logger.Info("queue manager started", "lease", cfg.Lease().String(), "driver", cfg.Store.Driver)
	return app.Serve(ctx, cfg.HTTP.Addr, httptransport.QueueRoutes(h, logger), logger)
}
