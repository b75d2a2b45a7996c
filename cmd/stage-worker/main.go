// cmd/stage-worker/main.go
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
	"article-pipeline/internal/entity"
	"article-pipeline/internal/queueclient"
	"article-pipeline/internal/stage"
	httptransport "article-pipeline/internal/transport/http"
	"article-pipeline/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("stage-worker: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.RoleStageWorker); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	typ, _ := entity.ParseJobType(cfg.Worker.Stage)
	logger, err := app.NewLogger(cfg, "worker-"+string(typ))
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	store, closeRedis, err := app.OpenHandoff(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	h, err := stage.New(typ, app.StageDeps(cfg, store))
	if err != nil {
		return err
	}

	queue := queueclient.New(cfg.Queue.URL, cfg.QueueTimeout())
	if err := queue.Health(ctx); err != nil {
		logger.Warn("queue manager not reachable yet", "url", cfg.Queue.URL, "err", err)
	}

	proc := worker.NewProcessor(h, queue, stores.Articles, worker.ProcessorConfig{
		Next:           cfg.NextStages(typ),
		TargetLanguage: cfg.Worker.TargetLanguage,
		Lease:          cfg.Lease(),
		Logger:         logger,
	})
	scanLimit := cfg.Worker.DirectScanLimit
	if scanLimit == 0 {
		scanLimit = -1 // zero in the file means off
	}
	w := worker.New(worker.Config{
		WorkerID:        cfg.Worker.ID,
		BatchSize:       cfg.Worker.BatchSize,
		DirectScanLimit: scanLimit,
		Concurrency:     cfg.Worker.Concurrency,
		TargetLanguage:  cfg.Worker.TargetLanguage,
	}, proc, queue, stores.Articles, logger)

	logger.Info("stage worker started",
		"stage", typ, "queue_url", cfg.Queue.URL, "batch_size", cfg.Worker.BatchSize,
		"concurrency", cfg.Worker.Concurrency, "next", cfg.NextStages(typ))
	return app.Serve(ctx, cfg.HTTP.Addr, httptransport.WorkerRoutes(httptransport.NewWorkerHandler(w), logger), logger)
}
