package httptransport

import (
	"fmt"
	"net/http"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/orchestrator"
)

type OrchestratorHandler struct {
	o *orchestrator.Orchestrator
}

func NewOrchestratorHandler(o *orchestrator.Orchestrator) *OrchestratorHandler {
	return &OrchestratorHandler{o: o}
}

type runDTO struct {
	Steps []string `json:"steps,omitempty"`
}

// RunPipeline godoc
// @Summary Trigger one pipeline cycle
// @Description Reclaims stale leases, then calls /process on each step's worker in order. Steps default to the configured list.
// @Tags orchestrator
// @Accept json
// @Produce json
// @Param request body runDTO false "steps"
// @Success 200 {object} orchestrator.RunResult
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /run-pipeline [post]
func (h *OrchestratorHandler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var dto runDTO
	if err := decodeJSON(r, &dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	steps := make([]entity.JobType, 0, len(dto.Steps))
	for _, s := range dto.Steps {
		typ, ok := entity.ParseJobType(s)
		if !ok {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("unknown step %q", s))
			return
		}
		steps = append(steps, typ)
	}
	res, err := h.o.RunPipeline(r.Context(), steps)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RetrySweep godoc
// @Summary Run the retry sweep now
// @Tags orchestrator
// @Produce json
// @Success 200 {object} orchestrator.SweepResult
// @Failure 500 {object} apiError
// @Router /retry [post]
func (h *OrchestratorHandler) RetrySweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.o.RetrySweep(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PipelineStatus godoc
// @Summary Article and job counters
// @Tags orchestrator
// @Produce json
// @Success 200 {object} orchestrator.PipelineStatus
// @Failure 500 {object} apiError
// @Router /pipeline-status [get]
func (h *OrchestratorHandler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.o.PipelineStatus(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Ingest godoc
// @Summary Add an article
// @Description Records the article and queues its extraction.
// @Tags orchestrator
// @Accept json
// @Produce json
// @Param request body orchestrator.IngestRequest true "article"
// @Success 201 {object} orchestrator.IngestResult
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /articles [post]
func (h *OrchestratorHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.o.Ingest(r.Context(), req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
