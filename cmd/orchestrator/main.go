// cmd/orchestrator/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "article-pipeline/docs"
	"article-pipeline/internal/app"
	"article-pipeline/internal/config"
	"article-pipeline/internal/entity"
	"article-pipeline/internal/orchestrator"
	"article-pipeline/internal/service"
	"article-pipeline/internal/stage"
	httptransport "article-pipeline/internal/transport/http"
	"article-pipeline/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.RoleOrchestrator); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := app.NewLogger(cfg, "orchestrator")
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	qm := service.NewQueueManager(stores.Jobs, service.Options{Lease: cfg.Lease(), Logger: logger})

	// the sweep reprocesses jobs in-process and needs the handoff store
	var procs []*worker.Processor
	if cfg.Orchestrator.SweepEnabled {
		store, closeRedis, err := app.OpenHandoff(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRedis()
		procs = sweepProcessors(cfg, app.StageDeps(cfg, store), qm, stores.Articles, logger)
	}

	o := orchestrator.New(orchestrator.Config{
		Interval:       cfg.Interval(),
		Steps:          cfg.Steps(),
		WorkerURLs:     cfg.WorkerURLs(),
		Chain:          cfg.Chain(),
		TargetLanguage: cfg.Worker.TargetLanguage,
		RetryWindow:    cfg.RetryWindow(),
		RetryLimit:     cfg.Orchestrator.RetryLimit,
		LockPath:       cfg.Orchestrator.LockPath,
		SweepEnabled:   cfg.Orchestrator.SweepEnabled,
	}, qm, stores.Articles, procs, logger)

	go o.Run(ctx)

	return app.Serve(ctx, cfg.HTTP.Addr, httptransport.OrchestratorRoutes(httptransport.NewOrchestratorHandler(o), logger), logger)
}

// sweepProcessors builds a processor for every stage whose remote is configured.
func sweepProcessors(cfg *config.Config, deps stage.Deps, qm *service.QueueManager, articles app.ArticleStore, logger *slog.Logger) []*worker.Processor {
	var procs []*worker.Processor
	for _, typ := range entity.JobTypes() {
		h, err := stage.New(typ, deps)
		if err != nil {
			logger.Info("sweep: stage skipped", "stage", typ, "reason", err.Error())
			continue
		}
		procs = append(procs, worker.NewProcessor(h, qm, articles, worker.ProcessorConfig{
			Next:           cfg.NextStages(typ),
			TargetLanguage: cfg.Worker.TargetLanguage,
			Lease:          cfg.Lease(),
			Logger:         logger,
		}))
	}
	return procs
}
