package httptransport

import (
	"encoding/json"
	"io"
	"net/http"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/worker"
)

// WorkerHandler exposes one Stage Worker.
type WorkerHandler struct {
	w *worker.Worker
}

func NewWorkerHandler(w *worker.Worker) *WorkerHandler {
	return &WorkerHandler{w: w}
}

type batchDTO struct {
	Limit int `json:"limit,omitempty"`
}

type batchResp struct {
	Success  bool `json:"success"`
	Enqueued int  `json:"enqueued"`
}

// Process godoc
// @Summary Run one poll-and-drain cycle
// @Description Claims a batch for this stage and processes it. Falls back to a direct article scan when the queue is empty.
// @Tags worker
// @Produce json
// @Success 200 {object} worker.ProcessResult
// @Failure 500 {object} apiError
// @Router /process [post]
func (h *WorkerHandler) Process(w http.ResponseWriter, r *http.Request) {
	res, err := h.w.Process(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Invoke godoc
// @Summary Run the stage for one payload
// @Description Synchronous, bypasses the queue. The path is the stage verb, e.g. /extract.
// @Tags worker
// @Accept json
// @Produce json
// @Param request body object true "stage payload"
// @Success 200 {object} successResp
// @Failure 400 {object} apiError
// @Failure 409 {object} apiError
// @Failure 422 {object} apiError
// @Failure 424 {object} apiError
// @Failure 500 {object} apiError
// @Router /{verb} [post]
func (h *WorkerHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(raw) {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.w.Invoke(r.Context(), raw); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResp{Success: true})
}

// BatchExtract godoc
// @Summary Queue extraction for pending articles
// @Tags worker
// @Accept json
// @Produce json
// @Param request body batchDTO false "batch"
// @Success 200 {object} batchResp
// @Failure 500 {object} apiError
// @Router /batch-extract [post]
func (h *WorkerHandler) BatchExtract(w http.ResponseWriter, r *http.Request) {
	var dto batchDTO
	if err := decodeJSON(r, &dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	n, err := h.w.EnqueuePending(r.Context(), dto.Limit)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResp{Success: true, Enqueued: n})
}

func (h *WorkerHandler) batchEnabled() bool {
	return h.w.Definition().Type == entity.JobExtract
}
