package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func newRouter(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// after RequestID
	r.Use(RequestLogger(logger))

	r.Get("/health", health)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return r
}

func QueueRoutes(h *QueueHandler, logger *slog.Logger) http.Handler {
	r := newRouter(logger)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Get("/{id}", h.GetJob)
		r.Post("/{id}/claim", h.ClaimJob)
		r.Post("/{id}/complete", h.CompleteJob)
		r.Post("/{id}/fail", h.FailJob)
		r.Post("/{id}/retry", h.RetryJob)
	})
	r.Post("/workers/poll", h.Poll)
	r.Post("/cleanup", h.Cleanup)
	r.Get("/stats", h.Stats)

	return r
}

func WorkerRoutes(h *WorkerHandler, logger *slog.Logger) http.Handler {
	r := newRouter(logger)

	r.Post("/process", h.Process)
	r.Post("/"+h.w.Definition().Verb, h.Invoke)
	if h.batchEnabled() {
		r.Post("/batch-extract", h.BatchExtract)
	}

	return r
}

func OrchestratorRoutes(h *OrchestratorHandler, logger *slog.Logger) http.Handler {
	r := newRouter(logger)

	r.Post("/run-pipeline", h.RunPipeline)
	r.Post("/retry", h.RetrySweep)
	r.Get("/pipeline-status", h.PipelineStatus)
	r.Post("/articles", h.Ingest)

	return r
}
